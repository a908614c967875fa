package webui

// Messages holds the user facing strings of the form page.
type Messages struct {
	Title       string
	SourceImage string
	Prompt      string
	Placeholder string
	Generate    string
	Generating  string
	Generated   string
	Alt         string
	MissingFile string
	Failed      string
}

var catalog = map[string]Messages{
	"en": {
		Title:       "Image Generator",
		SourceImage: "Source Image",
		Prompt:      "Prompt",
		Placeholder: "Enter a prompt",
		Generate:    "Generate Image",
		Generating:  "Generating...",
		Generated:   "Generated Image:",
		Alt:         "Generated",
		MissingFile: "Please select an image file",
		Failed:      "An error occurred while generating the image",
	},
	"id": {
		Title:       "Generator Gambar",
		SourceImage: "Gambar Sumber",
		Prompt:      "Prompt",
		Placeholder: "Masukkan prompt",
		Generate:    "Buat Gambar",
		Generating:  "Sedang membuat...",
		Generated:   "Gambar yang Dihasilkan:",
		Alt:         "Hasil",
		MissingFile: "Silakan pilih file gambar",
		Failed:      "Terjadi kesalahan saat membuat gambar",
	},
}

// Lookup returns the messages for locale, falling back to English.
func Lookup(locale string) Messages {
	if m, ok := catalog[locale]; ok {
		return m
	}
	return catalog["en"]
}
