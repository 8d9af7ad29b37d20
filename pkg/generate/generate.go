// Package generate produces fake cell values for bulk record generation.
package generate

import (
	"math"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

const (
	// WordsPerText is the number of lorem words in a generated text cell.
	WordsPerText = 3
	// MaxNumber bounds generated number cells to [0, MaxNumber).
	MaxNumber = 1000
)

// Faker implements store.CellGenerator with gofakeit.
// It is safe for concurrent use.
type Faker struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

var _ store.CellGenerator = (*Faker)(nil)

// New returns a generator. A zero seed draws from a random source; any other seed
// makes the output reproducible.
func New(seed uint64) *Faker {
	return &Faker{faker: gofakeit.New(seed)}
}

// Cell returns lorem words for text fields and a number with two decimals in
// [0, MaxNumber) for number fields.
func (f *Faker) Cell(field *models.Field) (*string, *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch field.Type {
	case models.FieldTypeText:
		words := make([]string, WordsPerText)
		for i := range words {
			words[i] = f.faker.LoremIpsumWord()
		}
		text := strings.Join(words, " ")
		return &text, nil
	case models.FieldTypeNumber:
		n := math.Round(f.faker.Float64Range(0, MaxNumber)*100) / 100
		if n >= MaxNumber {
			n = MaxNumber - 0.01
		}
		return nil, &n
	}
	return nil, nil
}
