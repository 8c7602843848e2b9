// Package ports declares the interfaces of every external collaborator the
// engine consumes but does not implement (spec.md §1, §6.1): the LLM client,
// the actor resolver, media/image generation, IMDB lookup, memory search,
// timer presentation effects, and attachment summarization. Concrete
// adapters for these live outside this module.
package ports

import "context"

// TurnContext is the read-only snapshot of world state the LLM is given to
// produce one LLMTurnOutput (spec §4.2 Phase A step 5).
type TurnContext struct {
	CampaignID        string
	ActorID           string
	SessionID         *string
	Action            string
	CampaignState     map[string]any
	CampaignSummary   string
	CampaignCharacters map[string]any
	PlayerState       map[string]any
	PlayerLevel       int
	PlayerXP          int
	RecentTurns       []TurnContextEntry
	StartRowVersion   int64
	Now               int64 // unix seconds, stable for the duration of one resolve
}

// TurnContextEntry is one entry of TurnContext.RecentTurns.
type TurnContextEntry struct {
	Kind    string
	Content string
}

// TimerInstruction requests that TurnEngine arm a new timer (spec §4.2 step 10).
type TimerInstruction struct {
	DelaySeconds    int
	EventText       string
	Interruptible   bool
	InterruptAction *string
}

// GiveItemInstruction requests an inter-player inventory transfer (spec §4.4).
type GiveItemInstruction struct {
	Item            string
	ToActorID       *string
	ToDiscordMention *string
}

// LLMTurnOutput is the structured response LLMPort.CompleteTurn produces.
type LLMTurnOutput struct {
	Narration         string
	StateUpdate       map[string]any
	SummaryUpdate     *string
	XPAwarded         int
	PlayerStateUpdate map[string]any
	SceneImagePrompt  *string
	TimerInstruction  *TimerInstruction
	CharacterUpdates  map[string]any
	GiveItem          *GiveItemInstruction
}

// LLMPort is the external collaborator that turns a TurnContext into a
// structured LLMTurnOutput. Out of scope per spec §1: no implementation
// lives in this module.
type LLMPort interface {
	CompleteTurn(ctx context.Context, tc TurnContext) (LLMTurnOutput, error)
}

// ActorResolverPort maps an external mention (e.g. a Discord "<@id>" string)
// to an actor id, used by give-item normalization (spec §4.4).
type ActorResolverPort interface {
	ResolveDiscordMention(ctx context.Context, mention string) (actorID string, ok bool, err error)
}

// MemoryHit is one result row from a memory search over turn history.
type MemoryHit struct {
	TurnID int64
	Score  float64
}

// MemorySearchPort is the out-of-scope vector/semantic search adapter over
// turn history (spec §1, §6.1). RewindEngine.FilterMemoryHitsByVisibility
// operates on its results but does not call it.
type MemorySearchPort interface {
	Search(ctx context.Context, campaignID, query string, topK int) ([]MemoryHit, error)
	DeleteTurnsAfter(ctx context.Context, campaignID string, turnID int64) (int, error)
}

// MediaGenerationPort is the out-of-scope queue for scene/avatar image
// generation (spec §1). TurnEngine only enqueues an outbox event naming the
// work; this port is never called directly by the core.
type MediaGenerationPort interface {
	GPUWorkerAvailable(ctx context.Context) (bool, error)
	EnqueueSceneGeneration(ctx context.Context, campaignID, roomKey, prompt string) error
	EnqueueAvatarGeneration(ctx context.Context, actorID, prompt string) error
}

// TimerEffectsPort is the out-of-scope presentation adapter that reflects
// timer state onto an external message (spec §1, §4.5 "Binding").
type TimerEffectsPort interface {
	EditTimerLine(ctx context.Context, timerID string, text string) error
	EmitTimedEvent(ctx context.Context, timerID string, eventText string) error
}

// IMDBLookupPort is the out-of-scope media-metadata enrichment adapter
// (spec §1).
type IMDBLookupPort interface {
	Search(ctx context.Context, title string) ([]string, error)
	Enrich(ctx context.Context, id string) (map[string]any, error)
	FetchDetails(ctx context.Context, id string) (map[string]any, error)
}

// TextCompletionPort is a lower-level raw text-completion adapter, distinct
// from LLMPort's structured-turn contract (spec §1).
type TextCompletionPort interface {
	Complete(ctx context.Context, systemPrompt, prompt string, temperature float64, maxTokens int) (string, error)
}

// AttachmentSummarizerPort is the out-of-scope token-aware chunking utility
// (spec §1), grounded on original_source/core/attachments.py's public
// surface. Declared here so a future caller has a contract to implement
// against even though no adapter ships in this module.
type AttachmentSummarizerPort interface {
	Summarize(ctx context.Context, text string, budgetTokens int) (string, error)
}
