package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
)

// DecisionService chooses the next action for a goal. Form-filling goals are
// handled deterministically from goal context and progress state; only the
// open-ended portal hunt is delegated to the language model.
type DecisionService struct {
	llm      schemas.LLMClient
	logger   *zap.Logger
	handlers map[schemas.GoalType]func(DecisionInput) (Outcome, error)
}

var _ Decider = (*DecisionService)(nil)

// NewDecisionService wires the per-goal handler table.
func NewDecisionService(llm schemas.LLMClient, logger *zap.Logger) *DecisionService {
	s := &DecisionService{
		llm:    llm,
		logger: logger.Named("decision"),
	}
	s.handlers = map[schemas.GoalType]func(DecisionInput) (Outcome, error){
		schemas.GoalFillBillInfo:        decideFillBillInfo,
		schemas.GoalSelectPaymentMethod: decideSelectPaymentMethod,
		schemas.GoalFillBankAccount:     decideFillBankAccount,
		schemas.GoalMakePayment:         decideMakePayment,
	}
	return s
}

// Decide routes to the handler for the goal type. Unknown goal types are an
// error rather than a guess.
func (s *DecisionService) Decide(ctx context.Context, in DecisionInput) (Outcome, error) {
	if in.Goal.Type == schemas.GoalFindGuestPayURL {
		return s.decideViaLLM(ctx, in)
	}
	handler, ok := s.handlers[in.Goal.Type]
	if !ok {
		return Outcome{}, fmt.Errorf("no decision handler for goal type %q", in.Goal.Type)
	}
	return handler(in)
}

// -- LLM-delegated decisions --

const llmAPITimeout = 45 * time.Second

// decideViaLLM asks the model for the next step in locating the guest
// payment portal. The temperature is kept low; creative exploration on an
// unfamiliar billing site is a liability, not a feature.
func (s *DecisionService) decideViaLLM(ctx context.Context, in DecisionInput) (Outcome, error) {
	userPrompt, err := buildUserPrompt(in)
	if err != nil {
		return Outcome{}, err
	}

	apiCtx, cancel := context.WithTimeout(ctx, llmAPITimeout)
	defer cancel()

	req := schemas.GenerationRequest{
		SystemPrompt: findPortalSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.1},
	}

	response, err := s.llm.Generate(apiCtx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("llm generation failed: %w", err)
	}

	decision, err := s.parseDecisionResponse(response)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to parse llm response: %w", err)
	}

	s.logger.Info("LLM decision received",
		zap.String("observation", decision.Observation),
		zap.String("action", string(decision.Action.Type)),
		zap.Bool("goal_achieved", decision.GoalAchieved),
		zap.Float64("confidence", decision.Confidence),
	)
	return Outcome{Decision: decision}, nil
}

const findPortalSystemPrompt = `You are the navigator for an automated bill payment assistant.
Your goal is to locate the guest payment page ("Pay as Guest", "Guest Pay", "Quick Pay", "Pay Without Logging In") on a utility or service provider's website.
You receive a structured snapshot of the current page and the history of actions taken so far, and must respond with a single JSON object describing the next step.

Available action types:
    - click: Click a button or link. "target" is its visible text, accessible label, or a CSS selector.
    - type: Type into a field. "target" identifies the field (label, placeholder, or name); "value" is the text.
    - navigate: Go directly to a URL. "target" is the full URL.
    - wait: Let the page settle before acting again.
    - scroll: Scroll the page. "target" is "up" or "down".

Strategy, in priority order:
    1. If a cookie banner, popup, or modal is blocking the page, dismiss it first.
    2. If a direct guest-pay link or button is visible, use it.
    3. Otherwise, use the site's own search to look for guest payment.
    4. Never use a generic web search engine; stay on the provider's site.

Respond with only a JSON object of this shape:
{"observation": "what you see", "reasoning": "why this step", "action": {"action": "click", "target": "...", "value": "..."}, "goal_achieved": false, "confidence": 0.8}

Set "goal_achieved" to true, with no action, once the page shows a guest bill lookup form (account number and ZIP code fields).`

// buildUserPrompt embeds the goal, the page snapshot, and recent history.
func buildUserPrompt(in DecisionInput) (string, error) {
	snapJSON, err := json.Marshal(in.Snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal page snapshot: %w", err)
	}

	var history strings.Builder
	if len(in.History) == 0 {
		history.WriteString("    (none yet)")
	}
	for _, rec := range in.History {
		status := "ok"
		if !rec.Succeeded {
			status = "FAILED"
		}
		fmt.Fprintf(&history, "    %d. [%s] %s: %s (%s)\n",
			rec.Iteration, status, rec.Action.Type, rec.Action.Target, rec.Detail)
	}

	return fmt.Sprintf(`Provider: %s

    Current Page State (JSON):
    %s

    Actions taken so far:
%s

    Determine the next step toward the guest payment page. Respond with a single JSON object.`,
		in.Goal.Context.Provider, string(snapJSON), history.String()), nil
}

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseDecisionResponse extracts and validates the decision JSON, handling
// markdown fences or raw JSON. A structurally incomplete decision is a hard
// error; a model that cannot explain itself cannot be trusted to drive.
func (s *DecisionService) parseDecisionResponse(response string) (schemas.AgentDecision, error) {
	response = strings.TrimSpace(response)
	var decision schemas.AgentDecision
	var jsonStringToParse string

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return schemas.AgentDecision{}, fmt.Errorf("could not find any JSON in the LLM response")
	}

	if err := json.Unmarshal([]byte(jsonStringToParse), &decision); err != nil {
		s.logger.Warn("Failed to unmarshal LLM response",
			zap.String("raw_response", response),
			zap.String("extracted_json", jsonStringToParse),
			zap.Error(err))
		return schemas.AgentDecision{}, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	if decision.Observation == "" || decision.Reasoning == "" {
		return schemas.AgentDecision{}, fmt.Errorf("LLM response missing required observation or reasoning fields")
	}
	if !decision.GoalAchieved && decision.Action.Type == "" {
		return schemas.AgentDecision{}, fmt.Errorf("LLM response missing an action while the goal is not achieved")
	}
	return decision, nil
}
