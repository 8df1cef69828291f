package reconciler

import (
	"sort"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	"github.com/google/uuid"
)

// Outcome describes what applying one event did to a projection.
type Outcome int

const (
	Ignored Outcome = iota
	Applied
	ResyncRequired
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case ResyncRequired:
		return "resync"
	default:
		return "ignored"
	}
}

// Projection is a client's read-only copy of one wishlist. Products are kept
// in position order and only ever replaced by a higher revision. Deleted
// products leave a tombstone so late events cannot resurrect them.
type Projection struct {
	wishlistID uuid.UUID
	name       string
	owner      wishlists.UserRefDTO
	members    []wishlists.UserRefDTO
	revision   int64
	products   []wishlists.ProductDTO
	tombstones map[uuid.UUID]int64
}

func NewProjection(wishlistID uuid.UUID) *Projection {
	return &Projection{
		wishlistID: wishlistID,
		tombstones: make(map[uuid.UUID]int64),
	}
}

func (p *Projection) WishlistID() uuid.UUID { return p.wishlistID }
func (p *Projection) Name() string          { return p.name }
func (p *Projection) Revision() int64       { return p.revision }

// Reset replaces the projection with an authoritative snapshot. Tombstones
// survive so a snapshot read before a delete committed cannot bring the
// product back.
func (p *Projection) Reset(snapshot wishlists.WishlistDTO) {
	p.name = snapshot.Name
	p.owner = snapshot.Owner
	p.revision = snapshot.Revision
	p.members = append([]wishlists.UserRefDTO(nil), snapshot.Members...)

	p.products = p.products[:0]
	for _, product := range snapshot.Products {
		if p.buried(product) {
			continue
		}
		p.products = append(p.products, product)
	}
	sortByPosition(p.products)
}

// Apply folds one event into the projection.
func (p *Projection) Apply(event realtime.Event) (Outcome, error) {
	if event.WishlistID != p.wishlistID {
		return Ignored, nil
	}
	if event.Type.Structural() {
		return ResyncRequired, nil
	}

	var product wishlists.ProductDTO
	if err := event.Decode(&product); err != nil {
		return Ignored, err
	}

	switch event.Type {
	case realtime.ProductAdded:
		return p.upsert(product, true), nil
	case realtime.ProductUpdated, realtime.CommentAdded, realtime.ReactionChanged:
		return p.upsert(product, false), nil
	case realtime.ProductDeleted:
		return p.remove(product), nil
	}
	return Ignored, nil
}

func (p *Projection) upsert(product wishlists.ProductDTO, insert bool) Outcome {
	if p.buried(product) {
		return Ignored
	}
	idx := p.indexOf(product.ID)
	if idx < 0 {
		if !insert {
			return Ignored
		}
		p.products = append(p.products, product)
		sortByPosition(p.products)
		return Applied
	}
	if product.Revision <= p.products[idx].Revision {
		return Ignored
	}
	p.products[idx] = product
	return Applied
}

func (p *Projection) remove(product wishlists.ProductDTO) Outcome {
	if product.Revision > p.tombstones[product.ID] {
		p.tombstones[product.ID] = product.Revision
	}
	idx := p.indexOf(product.ID)
	if idx < 0 {
		return Ignored
	}
	p.products = append(p.products[:idx], p.products[idx+1:]...)
	return Applied
}

func (p *Projection) buried(product wishlists.ProductDTO) bool {
	rev, ok := p.tombstones[product.ID]
	return ok && product.Revision <= rev
}

func (p *Projection) indexOf(id uuid.UUID) int {
	for i := range p.products {
		if p.products[i].ID == id {
			return i
		}
	}
	return -1
}

// Product returns a copy of the product with the given id.
func (p *Projection) Product(id uuid.UUID) (wishlists.ProductDTO, bool) {
	idx := p.indexOf(id)
	if idx < 0 {
		return wishlists.ProductDTO{}, false
	}
	return p.products[idx], true
}

func (p *Projection) Products() []wishlists.ProductDTO {
	return append([]wishlists.ProductDTO(nil), p.products...)
}

func (p *Projection) Members() []wishlists.UserRefDTO {
	return append([]wishlists.UserRefDTO(nil), p.members...)
}

// View renders the projection in the same shape the server returns.
func (p *Projection) View() wishlists.WishlistDTO {
	return wishlists.WishlistDTO{
		ID:       p.wishlistID,
		Name:     p.name,
		Owner:    p.owner,
		Members:  p.Members(),
		Products: p.Products(),
		Revision: p.revision,
	}
}

func sortByPosition(products []wishlists.ProductDTO) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Position < products[j].Position
	})
}
