package fixtures

import (
	_ "embed"

	jsoniter "github.com/json-iterator/go"

	"github.com/parkdalelib/circulation-go/circulation"
)

//go:embed catalog.json
var catalogJSON []byte

type catalogEntry struct {
	Title         string `json:"title"`
	Type          string `json:"type"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	Publisher     string `json:"publisher"`
	ISSN          string `json:"issn"`
	Director      string `json:"director"`
	CatalogNumber string `json:"catalog_number"`
}

// LoadCatalog decodes the embedded sample catalog into items, all available.
// It panics on a broken fixture file since that is a programming error.
func LoadCatalog() []circulation.Item {
	var entries []catalogEntry

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(catalogJSON, &entries); err != nil {
		panic("broken catalog fixture: " + err.Error())
	}

	items := make([]circulation.Item, 0, len(entries))

	for _, entry := range entries {
		itemType, err := circulation.ItemTypeFromString(entry.Type)
		if err != nil {
			panic("broken catalog fixture: " + err.Error())
		}

		items = append(items, circulation.Item{
			Title:         entry.Title,
			Type:          itemType,
			Available:     true,
			Author:        entry.Author,
			ISBN:          entry.ISBN,
			Publisher:     entry.Publisher,
			ISSN:          entry.ISSN,
			Director:      entry.Director,
			CatalogNumber: entry.CatalogNumber,
		})
	}

	return items
}
