package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// PatientProfile is the input to diet plan generation, typically filled
// from the user's tracked categories and free-form notes.
type PatientProfile struct {
	Age          int
	Conditions   []string // e.g. "type 2 diabetes", "hypertension"
	Restrictions []string // e.g. "vegetarian", "low sodium"
	Notes        string
}

// Meal is one entry of a diet plan.
type Meal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Calories    int    `json:"calories"`
}

// DietPlan is a one-day meal plan keyed by part of day.
type DietPlan struct {
	Breakfast Meal   `json:"breakfast"`
	Lunch     Meal   `json:"lunch"`
	Dinner    Meal   `json:"dinner"`
	Snacks    []Meal `json:"snacks"`
	Advice    string `json:"advice"`

	// Fallback is set when the endpoint failed and the deterministic
	// default plan was substituted.
	Fallback bool `json:"-"`
}

const dietSystemPrompt = `You are a dietitian assistant. Given a patient
profile, produce a one-day meal plan as strict JSON with this shape:
{"breakfast":{"name":"","description":"","calories":0},
"lunch":{"name":"","description":"","calories":0},
"dinner":{"name":"","description":"","calories":0},
"snacks":[{"name":"","description":"","calories":0}],
"advice":""}
Respond with the JSON object only, no prose and no markdown fences.`

// GenerateDietPlan asks the endpoint for a plan matching the profile. On
// any transport or parsing failure it logs the cause and returns the
// deterministic fallback plan with Fallback set, so callers can tell the
// user a default was substituted while keeping the feature usable.
func (a *Assistant) GenerateDietPlan(ctx context.Context, profile PatientProfile) (DietPlan, error) {
	if !a.Enabled() {
		return fallbackDietPlan(), nil
	}

	prompt := buildDietPrompt(profile)
	raw, err := a.client.Complete(ctx, dietSystemPrompt, []Message{{Role: RoleUser, Text: prompt}}, true)
	if err != nil {
		a.logger.Warn("diet plan generation failed, using fallback", zap.Error(err))
		return fallbackDietPlan(), nil
	}

	plan, err := parseDietPlan(raw)
	if err != nil {
		a.logger.Warn("diet plan response malformed, using fallback", zap.Error(err))
		return fallbackDietPlan(), nil
	}
	return plan, nil
}

func buildDietPrompt(profile PatientProfile) string {
	var builder strings.Builder
	builder.WriteString("Patient profile:\n")
	if profile.Age > 0 {
		builder.WriteString(fmt.Sprintf("- age: %d\n", profile.Age))
	}
	if len(profile.Conditions) > 0 {
		builder.WriteString("- conditions: " + strings.Join(profile.Conditions, ", ") + "\n")
	}
	if len(profile.Restrictions) > 0 {
		builder.WriteString("- dietary restrictions: " + strings.Join(profile.Restrictions, ", ") + "\n")
	}
	if profile.Notes != "" {
		builder.WriteString("- notes: " + profile.Notes + "\n")
	}
	builder.WriteString("Produce the one-day meal plan JSON.")
	return builder.String()
}

func parseDietPlan(raw string) (DietPlan, error) {
	cleaned := stripCodeFences(raw)
	var plan DietPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return DietPlan{}, fmt.Errorf("decode diet plan: %w", err)
	}
	if plan.Breakfast.Name == "" && plan.Lunch.Name == "" && plan.Dinner.Name == "" {
		return DietPlan{}, fmt.Errorf("diet plan missing meals")
	}
	return plan, nil
}

// stripCodeFences removes a leading/trailing markdown fence some models
// add despite being told not to.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// fallbackDietPlan is the deterministic plan substituted on failure.
func fallbackDietPlan() DietPlan {
	return DietPlan{
		Breakfast: Meal{
			Name:        "Oatmeal with berries",
			Description: "Rolled oats with fresh berries and a handful of nuts.",
			Calories:    350,
		},
		Lunch: Meal{
			Name:        "Grilled chicken salad",
			Description: "Mixed greens, grilled chicken, olive oil dressing.",
			Calories:    450,
		},
		Dinner: Meal{
			Name:        "Baked salmon with vegetables",
			Description: "Salmon fillet, steamed broccoli and brown rice.",
			Calories:    550,
		},
		Snacks: []Meal{
			{Name: "Greek yogurt", Description: "Plain, unsweetened.", Calories: 120},
			{Name: "Apple", Description: "One medium apple.", Calories: 95},
		},
		Advice:   "Drink plenty of water and keep portions moderate.",
		Fallback: true,
	}
}
