package listing

import (
	"strings"
	"testing"
)

func TestParse_TitlePreferredOverHref(t *testing.T) {
	doc := `<html><body><pre>
<a href="Sub/" title="My Sub">Sub/</a>
<a href="Game%20One.zip">Game One.zip</a>
</pre></body></html>`

	l := Parse(strings.NewReader(doc), Options{})
	want := []Entry{
		{Kind: Directory, Name: "My Sub", Href: "Sub/"},
		{Kind: File, Name: "Game One.zip", Href: "Game%20One.zip"},
	}
	if len(l.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(l.Entries), l.Entries)
	}
	for i := range want {
		if l.Entries[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, l.Entries[i], want[i])
		}
	}
}

func TestParse_TitleIsNotPercentDecoded(t *testing.T) {
	doc := `<a href="Save%2520Pack%20(100%25).zip" title="Save%20Pack (100%25).zip">x</a>`
	l := Parse(strings.NewReader(doc), Options{})
	if len(l.Entries) != 1 || l.Entries[0].Name != "Save%20Pack (100%25).zip" {
		t.Fatalf("entries = %+v", l.Entries)
	}

	doc = `<a href="Save%2520Pack%20(100%25).zip">x</a>`
	l = Parse(strings.NewReader(doc), Options{})
	if len(l.Entries) != 1 || l.Entries[0].Name != "Save%20Pack (100%).zip" {
		t.Fatalf("href-derived name = %+v", l.Entries)
	}
}

func TestParse_RejectsNavigationAndSortLinks(t *testing.T) {
	doc := `<html><body>
<a href="?C=N;O=D">Name</a>
<a href="../">Parent Directory</a>
<a href="/files/">Files</a>
<a href="https://example.com/x.zip">abs</a>
<a href="//cdn.example.com/y.zip">proto-relative</a>
<a href="contact.html">Contact</a>
<a href="donate/">Donate</a>
<a href="faq">FAQ</a>
<a href="javascript:void(0)">js</a>
<a href="#top">top</a>
<a href="Homebrew/">Homebrew/</a>
<a href="file%20name.zip">file name.zip</a>
</body></html>`

	l := Parse(strings.NewReader(doc), Options{})
	if len(l.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(l.Entries), l.Entries)
	}
	if l.Entries[0].Name != "Homebrew" || !l.Entries[0].IsDir() {
		t.Fatalf("unexpected first entry: %+v", l.Entries[0])
	}
	if l.Entries[1].Name != "file name.zip" || l.Entries[1].IsDir() {
		t.Fatalf("unexpected second entry: %+v", l.Entries[1])
	}
}

func TestParse_DeduplicatesByHref(t *testing.T) {
	doc := `<table>
<tr><td><a href="a.zip">a.zip</a></td></tr>
<tr><td><a href="a.zip" title="A">A</a></td></tr>
</table>`
	l := Parse(strings.NewReader(doc), Options{})
	if len(l.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", l.Entries)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	for _, doc := range []string{"", "<html><body>nothing here</body></html>", "<<<>>>"} {
		l := Parse(strings.NewReader(doc), Options{Root: "https://x/", Path: "p/"})
		if len(l.Entries) != 0 {
			t.Fatalf("expected empty listing for %q, got %+v", doc, l.Entries)
		}
		if l.URL() != "https://x/p/" {
			t.Fatalf("unexpected URL %q", l.URL())
		}
	}
}

func TestParse_SortDirectoriesKeepsFileOrder(t *testing.T) {
	doc := `<a href="zeta.zip">z</a>
<a href="beta/">beta/</a>
<a href="alpha.zip">a</a>
<a href="Alpha/">Alpha/</a>
<a href="Gamma/">Gamma/</a>`

	l := Parse(strings.NewReader(doc), Options{SortDirectories: true})
	var got []string
	for _, e := range l.Entries {
		got = append(got, e.Href)
	}
	want := "Alpha/ beta/ Gamma/ zeta.zip alpha.zip"
	if strings.Join(got, " ") != want {
		t.Fatalf("got %q, want %q", strings.Join(got, " "), want)
	}
}

func TestParse_NestedHrefUsesFinalSegment(t *testing.T) {
	l := Parse(strings.NewReader(`<a href="sub/Deep%20%5BA%5D.7z">x</a>`), Options{})
	if len(l.Entries) != 1 || l.Entries[0].Name != "Deep [A].7z" {
		t.Fatalf("unexpected entries: %+v", l.Entries)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hrefs := []string{
		"Game%20One.zip",
		"Sonic%20%26%20Knuckles%20%28World%29.zip",
		"Tom%20Clancy%27s%20%5BDisc%201%5D%2C%20Extra%2B.7z",
		"Sony%20-%20PlayStation%202",
	}
	for _, href := range hrefs {
		if got := EncodeSegment(Decode(href)); got != href {
			t.Errorf("round trip of %q gave %q", href, got)
		}
	}
}

func TestDecodeFallsBackOnMalformedEscape(t *testing.T) {
	if got := Decode("100%25%20%28bad%zz%29"); got != "100%25 (bad%zz)" {
		t.Fatalf("unexpected decode: %q", got)
	}
}

func TestEncodePath(t *testing.T) {
	if got := EncodePath("Disc 1/Game (USA).zip"); got != "Disc%201/Game%20%28USA%29.zip" {
		t.Fatalf("unexpected path encoding: %q", got)
	}
}
