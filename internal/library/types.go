package library

type Kind string

const (
	KindFile Kind = "file"
	KindURL  Kind = "url"
)

// Document is one input the service converts. Stem is its identity: it
// names the remote data_id and the output directory.
type Document struct {
	Stem   string `json:"stem"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Kind   Kind   `json:"kind"`
}

func (d Document) IsURL() bool {
	return d.Kind == KindURL
}

// Selector names where documents come from. Exactly one of URL, File, Dir
// and URLsFile is set.
type Selector struct {
	URL       string
	File      string
	Dir       string
	URLsFile  string
	Recursive bool
}

// SupportedExts are the local file types the conversion service accepts.
var SupportedExts = []string{
	".pdf",
	".doc",
	".docx",
	".ppt",
	".pptx",
	".png",
	".jpg",
	".jpeg",
}
