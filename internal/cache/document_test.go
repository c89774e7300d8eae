package cache

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/search"
)

func TestKey(t *testing.T) {
	k1 := Key(KindQuery, "plus grand volcan", "fr")
	if k1 != Key(KindQuery, "plus grand volcan", "fr") {
		t.Error("Key is not deterministic")
	}
	if !strings.HasPrefix(k1, "query:") || len(k1) != len("query:")+64 {
		t.Errorf("Key format = %q, want query: + 64 hex chars", k1)
	}
	if k1 != Key(KindQuery, "  plus grand volcan\n", "fr") {
		t.Error("surrounding whitespace should not change the key")
	}
	if k1 == Key(KindQuery, "plus grand volcan", "en") {
		t.Error("language must be part of the key")
	}
	if Key(KindQuery, "ab", "c") == Key(KindQuery, "a", "bc") {
		t.Error("query/language boundary must be unambiguous")
	}
	if Key("images", "q", "en") == Key(KindQuery, "q", "en") {
		t.Error("kind must be part of the key")
	}

	seen := make(map[string]string)
	for _, q := range []string{"a", "b", "facebook", "Facebook", "climate change", "climate  change", "volcan", "volcans", "", " x"} {
		k := Key(KindQuery, q, "en")
		if prev, ok := seen[k]; ok && strings.TrimSpace(prev) != strings.TrimSpace(q) {
			t.Errorf("collision between %q and %q", prev, q)
		}
		seen[k] = q
	}
}

func TestMerge(t *testing.T) {
	searchSection := &models.State{Query: "q", Answer: "answer"}
	images := &ImagesBundle{Images: []search.Image{{Title: "img"}}}
	videos := &YouTubeBundle{Videos: []search.Video{{ID: "v1"}}}

	existing := Document{Search: searchSection}
	merged := Merge(existing, Document{Images: images})

	if merged.Search != searchSection || merged.Images != images {
		t.Errorf("Merge lost a section: %+v", merged)
	}
	if existing.Images != nil {
		t.Error("Merge modified its input")
	}

	merged = Merge(merged, Document{YouTube: videos})
	if got := merged.Sections(); !reflect.DeepEqual(got, []string{"search", "images", "youtube"}) {
		t.Errorf("Sections() = %v", got)
	}

	replacement := &models.State{Query: "q", Answer: "newer"}
	if got := Merge(merged, Document{Search: replacement}); got.Search.Answer != "newer" {
		t.Error("fragment section should replace the existing one")
	}
}

func TestMerge_Idempotent(t *testing.T) {
	existing := Document{Search: &models.State{Query: "q"}}
	fragment := Document{
		Images:    &ImagesBundle{Images: []search.Image{{Title: "img"}}},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	once := Merge(existing, fragment)
	twice := Merge(once, fragment)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merging twice differs:\nonce  %+v\ntwice %+v", once, twice)
	}
}

func TestDocumentEmpty(t *testing.T) {
	if !(Document{}).Empty() {
		t.Error("zero document should be empty")
	}
	if (Document{YouTube: &YouTubeBundle{}}).Empty() {
		t.Error("document with a section is not empty")
	}
}

func TestCodec(t *testing.T) {
	doc := Document{
		Search:    &models.State{Query: "volcan", Answer: strings.Repeat("lave ", 200)},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	zc, err := newCodec(true)
	if err != nil {
		t.Fatal(err)
	}
	defer zc.close()
	plain, err := newCodec(false)
	if err != nil {
		t.Fatal(err)
	}
	defer plain.close()

	compressed, err := zc.encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(compressed), string(zstdMagic)) {
		t.Error("compressed value should start with the zstd magic")
	}
	raw, err := plain.encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(compressed) >= len(raw) {
		t.Errorf("compressed %d bytes, plain %d: expected a saving", len(compressed), len(raw))
	}

	// Either codec reads either encoding.
	for name, data := range map[string][]byte{"compressed": compressed, "plain": raw} {
		got, err := plain.decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if got.Search.Answer != doc.Search.Answer || !got.UpdatedAt.Equal(doc.UpdatedAt) {
			t.Errorf("decode %s lost data", name)
		}
	}

	if _, err := plain.decode([]byte("not json")); err == nil {
		t.Error("decode of garbage should fail")
	}
}
