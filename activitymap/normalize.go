package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-workspace-auth"
)

const (
	// MetadataKeyPrincipalID keeps the principal when the object is a workspace
	MetadataKeyPrincipalID = "principal_id"
)

const (
	ObjectTypePrincipal = "principal"
	ObjectTypeWorkspace = "workspace"

	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
// Events that name a workspace are about the workspace, everything else is
// about the principal.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{actorFallback: defaultActorID}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	principalID := strings.TrimSpace(event.PrincipalID)
	workspaceID := strings.TrimSpace(event.WorkspaceID)

	out := Normalized{
		ActorID:    firstNonEmpty(principalID, options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: ObjectTypePrincipal,
		ObjectID:   principalID,
		Channel:    firstNonEmpty(options.channel, channelOf(event.EventType)),
		Metadata:   cloneMap(event.Metadata),
		OccurredAt: event.OccurredAt,
	}

	if workspaceID != "" {
		out.ObjectType = ObjectTypeWorkspace
		out.ObjectID = workspaceID
		if principalID != "" {
			if out.Metadata == nil {
				out.Metadata = map[string]any{}
			}
			out.Metadata[MetadataKeyPrincipalID] = principalID
		}
	}

	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now().UTC()
	}

	return out
}

// WithChannel forces the channel instead of deriving it from the event type.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event has no principal.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// NewLogSink returns an ActivitySink that writes normalized records to logger.
func NewLogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	logger = auth.NormalizeLogger(logger)
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)
		logger.Info("activity",
			"verb", n.Verb,
			"channel", n.Channel,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}

// channelOf is the event type prefix: "auth.login.success" is on "auth".
func channelOf(eventType auth.ActivityEventType) string {
	channel, _, _ := strings.Cut(string(eventType), ".")
	return channel
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
