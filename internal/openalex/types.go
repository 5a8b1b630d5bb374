package openalex

// SearchResponse is the top-level response from the OpenAlex /works endpoint.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta holds pagination metadata for a search response.
type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work is a single OpenAlex work record. Only the fields the pipeline consumes
// are mapped.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	CitedByCount    int          `json:"cited_by_count"`
	Authorships     []Authorship `json:"authorships"`
	OpenAccess      *OpenAccess  `json:"open_access"`
	PrimaryLocation *Location    `json:"primary_location"`
	BestOALocation  *Location    `json:"best_oa_location"`
}

// Authorship links a work to one of its authors.
type Authorship struct {
	Author Author `json:"author"`
}

// Author is the nested author record of an authorship.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// OpenAccess holds a work's open-access status.
type OpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

// Location is a hosted copy of a work.
type Location struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
}
