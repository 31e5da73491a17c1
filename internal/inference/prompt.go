// Package inference implements categorize.Inferrer on top of hosted LLM
// APIs.
package inference

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"konto/internal/categorize"
)

const promptTemplate = `You are a financial assistant that sorts bank transactions into categories.

Available categories:
%s

Uncategorized transactions:
%s

Rules:
1. Look at creditor, debtor, amount and reference of each transaction.
2. Assign the id of the best fitting category from the list.
3. When a transaction clearly matches a category (for example "Rewe" to Groceries or "Shell" to Fuel), assign it.
4. When nothing in the list fits but the transaction clearly belongs to a common category, propose a new category name.
   Keep the list compact: prefer broad categories such as "Shopping", "Mobility", "Living" or "Lifestyle"
   over narrow ones such as "Coffee" or "Gym", and aim for about six or seven categories in total.
5. When a transaction is ambiguous, use null.
6. Answer with a single JSON object whose keys are transaction ids and whose values are one of:
   - an existing category id (a string starting with "cat_")
   - a new category name, written in %s
   - null

Example:
{"tx_123": "cat_456", "tx_789": "New Category Name", "tx_000": null}
`

// languageName maps a CATEGORY_LANGUAGE code to the name used in the prompt.
func languageName(code string) string {
	if code == "de" {
		return "German (Deutsch)"
	}
	return "English"
}

// BuildPrompt renders the categorization prompt for one batch.
func BuildPrompt(batch []categorize.TxSummary, catalog []categorize.CatalogEntry, language string) string {
	return fmt.Sprintf(promptTemplate,
		categorize.MarshalCatalog(catalog),
		categorize.MarshalBatch(batch),
		languageName(language))
}

var fence = regexp.MustCompile("```(?:json)?")

// cleanModelJSON strips markdown code fences around a model answer.
func cleanModelJSON(s string) string {
	return strings.TrimSpace(fence.ReplaceAllString(s, ""))
}

// ParseAssignments decodes a model answer. Strings are kept; null and any
// other JSON type become nil.
func ParseAssignments(text string) (map[string]*string, error) {
	text = cleanModelJSON(text)
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	out := make(map[string]*string, len(raw))
	for id, v := range raw {
		if s, ok := v.(string); ok {
			out[id] = &s
			continue
		}
		out[id] = nil
	}
	return out, nil
}
