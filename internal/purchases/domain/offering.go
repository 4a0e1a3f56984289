package domain

// OfferingTag marks the role of an offering.
type OfferingTag string

const (
	OfferingTagNone OfferingTag = "none"
	OfferingTagMain OfferingTag = "main"
)

// Offering is a named group of products presented together.
type Offering struct {
	ID       string      `json:"id"`
	Tag      OfferingTag `json:"tag"`
	Products []Product   `json:"products"`
}

// Offerings is the set of offerings configured for the app.
type Offerings struct {
	Available []Offering `json:"available"`
}

// Main returns the offering tagged as main, if any.
func (o *Offerings) Main() *Offering {
	if o == nil {
		return nil
	}
	for i := range o.Available {
		if o.Available[i].Tag == OfferingTagMain {
			return &o.Available[i]
		}
	}
	return nil
}

// Find returns the offering with the given id, if any.
func (o *Offerings) Find(id string) *Offering {
	if o == nil {
		return nil
	}
	for i := range o.Available {
		if o.Available[i].ID == id {
			return &o.Available[i]
		}
	}
	return nil
}

// WithCatalog returns a deep copy of the offerings with catalog metadata
// attached to every product that has a matching store id.
func (o *Offerings) WithCatalog(catalog map[string]StoreMetadata) *Offerings {
	if o == nil {
		return nil
	}
	out := &Offerings{Available: make([]Offering, 0, len(o.Available))}
	for _, offering := range o.Available {
		products := make([]Product, 0, len(offering.Products))
		for _, p := range offering.Products {
			products = append(products, attach(p, catalog))
		}
		out.Available = append(out.Available, Offering{
			ID:       offering.ID,
			Tag:      offering.Tag,
			Products: products,
		})
	}
	return out
}

// AttachCatalog returns a copy of products with catalog metadata attached.
// Products without a matching catalog entry carry no metadata.
func AttachCatalog(products map[string]Product, catalog map[string]StoreMetadata) map[string]Product {
	out := make(map[string]Product, len(products))
	for id, p := range products {
		out[id] = attach(p, catalog)
	}
	return out
}

func attach(p Product, catalog map[string]StoreMetadata) Product {
	if p.StoreID == "" {
		return p.WithStoreDetails(nil)
	}
	md, ok := catalog[p.StoreID]
	if !ok {
		return p.WithStoreDetails(nil)
	}
	return p.WithStoreDetails(&md)
}
