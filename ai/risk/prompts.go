package risk

import (
	"fmt"
	"strings"

	"github.com/lotus-health/lotus/store"
)

// healthExpertSystemPrompt frames the model as an ingredient safety expert.
const healthExpertSystemPrompt = `You are a medical expert specializing in vaginal health and ingredient safety assessment.
Your role is to provide evidence-based health guidance about personal care product ingredients and their potential effects on vaginal health.

You have deep knowledge of:
- Ingredient chemistry and properties
- Common vaginal irritants and allergens
- Vulvovaginal conditions and sensitivities
- Scientific research on ingredient safety
- Individual variation in sensitivity profiles

When assessing ingredients, consider:
1. Direct chemical irritancy
2. pH disruption potential
3. Allergenic properties
4. Individual sensitivities provided by the user
5. Synergistic effects of multiple ingredients

Always provide balanced, evidence-based guidance.`

const riskAssessmentPrompt = `Based on the following information, assess the health risk level of this personal care product:

SCANNED INGREDIENTS:
%s

USER SENSITIVITIES:
%s

SIMILAR INGREDIENTS FROM KNOWLEDGE BASE:
%s

ASSESSMENT TASK:
1. Evaluate each ingredient against the user's known sensitivities
2. Cross-reference with similar ingredients in the knowledge base for risk patterns
3. Consider synergistic effects of multiple ingredients
4. Provide an overall risk level assessment

RESPONSE FORMAT:
You MUST respond with ONLY a valid JSON object (no markdown, no code blocks) with this structure:
{
    "overall_risk_level": "Low Risk (Safe)" | "Caution (Irritating)" | "High Risk (Harmful)",
    "explanation": "Brief 2-sentence explanation of the risk assessment",
    "ingredient_details": [
        {
            "name": "ingredient name",
            "risk_level": "Low" | "Medium" | "High",
            "reason": "Why this ingredient poses this risk level"
        }
    ],
    "recommendations": "Actionable advice for the user"
}

RISK LEVEL DEFINITIONS:
- Low Risk (Safe): Ingredient is generally safe for most people, unlikely to cause irritation
- Caution (Irritating): Ingredient may cause irritation for some users or in certain combinations
- High Risk (Harmful): Ingredient is known to cause problems for sensitive individuals or contains concerning substances

Ensure your response is ONLY valid JSON with no additional text.`

// formatAssessmentPrompt fills the assessment template with scan data.
func formatAssessmentPrompt(ingredients []string, sensitivities []string, matches []*store.IngredientMatch) string {
	ingredientsStr := "None"
	if len(ingredients) > 0 {
		ingredientsStr = strings.Join(ingredients, ", ")
	}

	sensitivitiesStr := "No known sensitivities"
	if len(sensitivities) > 0 {
		sensitivitiesStr = strings.Join(sensitivities, ", ")
	}

	matchesStr := "No similar ingredients found in knowledge base"
	if len(matches) > 0 {
		lines := make([]string, 0, len(matches))
		for _, match := range matches {
			description := match.Ingredient.Description
			if description == "" {
				description = "N/A"
			}
			lines = append(lines, fmt.Sprintf("- %s: %s (Risk Level: %s)",
				match.Ingredient.Name, description, match.Ingredient.RiskLevel))
		}
		matchesStr = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(riskAssessmentPrompt, ingredientsStr, sensitivitiesStr, matchesStr)
}
