package core

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Category is a user-defined transaction tag.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CategoryColors is the palette offered for new categories.
var CategoryColors = []string{
	"#FF6B6B",
	"#FF8E53",
	"#FFC93C",
	"#4ECB71",
	"#2ECC71",
	"#00B894",
	"#0984E3",
	"#6C5CE7",
	"#A29BFE",
	"#FD79A8",
	"#636E72",
	"#00CEC9",
}

// RandomCategoryColor picks a palette entry.
func RandomCategoryColor() string {
	return CategoryColors[rand.IntN(len(CategoryColors))]
}

const categoryIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(categoryIDAlphabet[rand.IntN(len(categoryIDAlphabet))])
	}
	return b.String()
}

// NewCategoryID returns cat_<unix ms>_<4 random chars>.
func NewCategoryID(now time.Time) string {
	return fmt.Sprintf("cat_%d_%s", now.UnixMilli(), randomSuffix(4))
}

// NewBulkCategoryID appends a second independent suffix so ids minted in the
// same millisecond stay distinct.
func NewBulkCategoryID(now time.Time) string {
	return NewCategoryID(now) + "_" + randomSuffix(2)
}

// NormalizeCategoryName trims the name and rejects blanks.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}
