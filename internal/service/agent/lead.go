package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/model/lead"
	"github.com/autostream/agent/backend/internal/service/ai"
	"github.com/autostream/agent/backend/pkg/utils"
)

var errNoJSONObject = errors.New("no json object in extraction output")

const extractionPrompt = `Current lead info: {current}
User message: {message}

Extract 'name', 'email', and 'platform' from the message if present.
Return a JSON object with only the keys you found. If a field is not present, leave it out.
Do not invent values.
Example: {{"name": "John"}}`

// LeadHandler collects name, email and platform over several turns and submits the
// lead to the sink once all three are known.
type LeadHandler struct {
	extractor ai.Chain
	sink      Sink
	logger    *zap.Logger
}

// NewLeadHandler compiles the extraction chain.
func NewLeadHandler(ctx context.Context, chatModel model.BaseChatModel, sink Sink, logger *zap.Logger) (*LeadHandler, error) {
	if sink == nil {
		return nil, fmt.Errorf("lead sink is required")
	}

	chain, err := ai.NewChain(ctx, chatModel, schema.UserMessage(extractionPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to compile lead extraction chain: %w", err)
	}

	return &LeadHandler{
		extractor: chain,
		sink:      sink,
		logger:    logger.Named("lead"),
	}, nil
}

func (h *LeadHandler) Name() HandlerName { return HandlerLead }

// Handle merges newly extracted fields, then either asks for what is missing or
// captures the lead and resets the record.
func (h *LeadHandler) Handle(ctx context.Context, state State) (Result, error) {
	current := state.Lead.Clone()
	merged := current.Merge(h.extract(ctx, state.SessionID, current, state.LatestUserText()))

	if missing := merged.Missing(); len(missing) > 0 {
		reply := fmt.Sprintf("Great! To get you started, I need a few details. Please provide your %s.", lead.JoinFields(missing))
		return Result{
			Messages: []chat.Message{chat.AssistantMessage(reply)},
			Lead:     merged,
		}, nil
	}

	sub, err := lead.NewSubmission(state.SessionID, merged)
	if err != nil {
		return Result{}, err
	}

	confirmation, err := h.sink.Submit(ctx, sub)
	if err != nil {
		return Result{}, fmt.Errorf("submit lead: %w", err)
	}

	reply := fmt.Sprintf("Thanks %s! %s. We'll be in touch.", sub.Name, confirmation)
	return Result{
		Messages: []chat.Message{chat.AssistantMessage(reply)},
		Lead:     lead.Info{},
	}, nil
}

// extract asks the model for newly mentioned fields. It never fails: any problem
// yields an empty extraction.
func (h *LeadHandler) extract(ctx context.Context, sessionID string, current lead.Info, message string) lead.Info {
	msg, err := h.extractor.Invoke(ctx, map[string]any{
		"current": renderInfo(current),
		"message": message,
	})
	if err != nil {
		h.logger.Warn("lead extraction failed",
			zap.String("session", sessionID),
			zap.String("stage", "model"),
			zap.Error(err))
		return nil
	}
	if msg == nil {
		return nil
	}

	fields, err := parseExtraction(msg.Content)
	switch {
	case errors.Is(err, errNoJSONObject):
		h.logger.Debug("lead extraction returned no fields", zap.String("session", sessionID))
		return nil
	case err != nil:
		h.logger.Warn("lead extraction failed",
			zap.String("session", sessionID),
			zap.String("stage", "parse"),
			zap.String("raw", utils.Truncate(msg.Content, 120)),
			zap.Error(err))
		return nil
	}

	h.logger.Debug("lead fields extracted",
		zap.String("session", sessionID),
		zap.Int("fields", len(fields)))
	return fields
}

// parseExtraction strips markdown fences and decodes the outermost JSON object.
func parseExtraction(raw string) (lead.Info, error) {
	cleaned := strings.NewReplacer("```json", "", "```", "").Replace(raw)
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	if start == -1 {
		return nil, errNoJSONObject
	}
	end := strings.LastIndex(cleaned, "}")
	if end < start {
		return nil, fmt.Errorf("unterminated json object")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return lead.FromMap(fields), nil
}

func renderInfo(info lead.Info) string {
	if len(info) == 0 {
		return "{}"
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(data)
}

