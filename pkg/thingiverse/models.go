package thingiverse

// Thing is the payload of GET /things/{id}. Only the fields the mirror
// persists or follows are decoded.
type Thing struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`

	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Details      string `json:"details"`

	DetailsParts []Detail `json:"details_parts"`

	Tags []Tag `json:"tags"`

	Creator Creator `json:"creator"`
	License string  `json:"license"`

	FilesURL  string `json:"files_url"`
	ImagesURL string `json:"images_url"`
}

// Tag is a single thing tag
type Tag struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// Creator is the user who published a thing
type Creator struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Detail is one section of a thing's structured description
type Detail struct {
	Name string                   `json:"name"`
	Type string                   `json:"type"`
	Data []map[string]interface{} `json:"data,omitempty"`
}

// Image is an entry of GET /things/{id}/images
type Image struct {
	ID    uint64      `json:"id"`
	Name  string      `json:"name"`
	Sizes []ImageSize `json:"sizes"`
}

// ImageSize is one rendition of an image
type ImageSize struct {
	Type string `json:"type"`
	Size string `json:"size"`
	URL  string `json:"url"`
}

// Rendition returns the URL of the size matching typ and size.
func (i Image) Rendition(typ, size string) (string, bool) {
	for _, s := range i.Sizes {
		if s.Type == typ && s.Size == size {
			return s.URL, true
		}
	}
	return "", false
}

// File is an entry of GET /things/{id}/files
type File struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Size uint64 `json:"size"`

	PublicURL string  `json:"public_url"`
	DirectURL *string `json:"direct_url"`
}

// DownloadURL prefers the direct URL when the API provides one.
func (f File) DownloadURL() string {
	if f.DirectURL != nil && *f.DirectURL != "" {
		return *f.DirectURL
	}
	return f.PublicURL
}
