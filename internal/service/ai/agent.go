// Package ai runs one conversational turn of the interviewer against the
// chat model, executing tool calls the model makes along the way.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/model/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/service/interview"
)

const historyLimit = 10

// ErrToolRounds is returned when the model keeps calling tools past the limit.
var ErrToolRounds = errors.New("model exceeded tool call rounds")

// Service generates interviewer replies.
type Service struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	maxRounds int
	logger    *zap.Logger
}

// NewService wraps a chat model. maxRounds bounds how many tool call rounds a
// single turn may take.
func NewService(chatModel model.BaseChatModel, maxRounds int, logger *zap.Logger) *Service {
	if maxRounds < 1 {
		maxRounds = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	return &Service{
		chatModel: chatModel,
		template:  template,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Reply runs one turn for the given agent and returns the text to speak.
func (s *Service) Reply(ctx context.Context, agent *interview.Agent, history []chat.Message, userText string) (string, error) {
	if agent == nil {
		return "", errors.New("no active agent")
	}

	messages, err := s.template.Format(ctx, map[string]any{
		"system":  BuildSystemPrompt(agent),
		"history": buildHistoryMessages(history),
		"query":   userText,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	generator, tools, opts, err := s.bind(ctx, agent.Tools)
	if err != nil {
		return "", err
	}

	for round := 0; round < s.maxRounds; round++ {
		resp, err := generator.Generate(ctx, messages, opts...)
		if err != nil {
			return "", fmt.Errorf("failed to generate reply: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			s.logger.Debug("generated reply",
				zap.String("mode", string(agent.Persona.Mode)),
				zap.Int("rounds", round+1),
				zap.Int("length", len(resp.Content)))
			return strings.TrimSpace(resp.Content), nil
		}

		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			result := s.runTool(ctx, tools, call)
			messages = append(messages, schema.ToolMessage(result, call.ID))
		}
	}

	return "", ErrToolRounds
}

// bind offers the agent's tools to the model. Models that support it get a
// tool-bound copy; others receive the tools as a per-call option so the
// shared model is never mutated.
func (s *Service) bind(ctx context.Context, tools []tool.InvokableTool) (model.BaseChatModel, map[string]tool.InvokableTool, []model.Option, error) {
	if len(tools) == 0 {
		return s.chatModel, nil, nil, nil
	}

	infos := make([]*schema.ToolInfo, 0, len(tools))
	byName := make(map[string]tool.InvokableTool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to describe tool: %w", err)
		}
		infos = append(infos, info)
		byName[info.Name] = t
	}

	if tcm, ok := s.chatModel.(model.ToolCallingChatModel); ok {
		bound, err := tcm.WithTools(infos)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		return bound, byName, nil, nil
	}
	return s.chatModel, byName, []model.Option{model.WithTools(infos)}, nil
}

func (s *Service) runTool(ctx context.Context, tools map[string]tool.InvokableTool, call schema.ToolCall) string {
	t, ok := tools[call.Function.Name]
	if !ok {
		s.logger.Warn("model called unknown tool", zap.String("tool", call.Function.Name))
		return fmt.Sprintf("Error: tool %q is not available.", call.Function.Name)
	}

	s.logger.Info("running tool", zap.String("tool", call.Function.Name), zap.String("call_id", call.ID))
	out, err := t.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		s.logger.Error("tool failed", zap.String("tool", call.Function.Name), zap.Error(err))
		return "Error: the tool failed to run."
	}
	return out
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
