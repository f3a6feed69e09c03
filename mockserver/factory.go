// storefront/mockserver/factory.go

package mockserver

import (
	"fmt"
	"math/rand/v2"

	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/shopspring/decimal"
)

var (
	adjectives = []string{"Incrível", "Rústico", "Elegante", "Pequeno", "Ergonômico", "Prático", "Fantástico", "Moderno"}
	materials  = []string{"Algodão", "Madeira", "Aço", "Plástico", "Granito", "Borracha", "Couro", "Vidro"}
	nouns      = []string{"Cadeira", "Mesa", "Camiseta", "Sapato", "Chapéu", "Teclado", "Bola", "Toalha", "Luva", "Carteira"}
)

// productFactory fills the zero fields of a product with generated values.
type productFactory struct {
	rnd *rand.Rand
}

func newProductFactory(seed uint64) *productFactory {
	return &productFactory{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (f *productFactory) build(id int, overrides catalog.Product) catalog.Product {
	p := overrides
	p.ID = fmt.Sprintf("%d", id)
	if p.Title == "" {
		p.Title = fmt.Sprintf("%s %s %s",
			adjectives[f.rnd.IntN(len(adjectives))],
			nouns[f.rnd.IntN(len(nouns))],
			materials[f.rnd.IntN(len(materials))])
	}
	if p.Price.IsZero() {
		p.Price = decimal.New(int64(100+f.rnd.IntN(99900)), -2)
	}
	return p
}
