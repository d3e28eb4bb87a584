package export

import "fmt"

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Total is a labelled figure printed below the table.
type Total struct {
	Label string
	Value string
}

// Document is a titled dataset with optional summary figures.
type Document struct {
	Title    string
	Subtitle string
	Data     Dataset
	Totals   []Total
}

// Renderer turns a document into file bytes of a single format.
type Renderer interface {
	Render(doc Document) ([]byte, error)
	ContentType() string
	Extension() string
}

func validate(data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	return nil
}
