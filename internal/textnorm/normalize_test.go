package textnorm

import (
	"strings"
	"testing"

	"github.com/ent0n29/ollavoice/internal/locale"
)

var fr = ConnectorsFor(locale.Default().Get(locale.French))

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "french dotted tokens",
			in:   "Le prix est 3.14 et le fichier est a.txt",
			want: "Le prix est 3 virgule 14 et le fichier est a point txt",
		},
		{
			name: "drops fenced code and unwraps inline code",
			in:   "Voici:\n```go\nfmt.Println(1)\n```\nLancez `make test` ensuite",
			want: "Voici:\n\nLancez make test ensuite",
		},
		{
			name: "unwraps links and emphasis",
			in:   "Lisez **la doc** sur [le site](https://example.com) et _vite_",
			want: "Lisez la doc sur le site et vite",
		},
		{
			name: "strips headings lists and quotes",
			in:   "## Titre\n- un\n* deux\n1. trois\n> cité",
			want: "Titre\nun\ndeux\ntrois\ncité",
		},
		{
			name: "strips deeply nested markers in one call",
			in:   strings.Repeat("> ", 10) + "x\n" + strings.Repeat("- ", 10) + "y\n> - 2. z",
			want: "x\ny\nz",
		},
		{
			name: "strips html and horizontal rules",
			in:   "<b>Salut</b>\n---\nfin",
			want: "Salut\n\nfin",
		},
		{
			name: "collapses tables",
			in:   "Avant\n| a | b |\n|---|---|\n| 1 | 2 |\nAprès",
			want: "Avant\n[Tableau]\nAprès",
		},
		{
			name: "collapses blank runs",
			in:   "un\n\n\n\n\ndeux",
			want: "un\n\ndeux",
		},
		{
			name: "keeps snake case identifiers",
			in:   "la variable file_name_here",
			want: "la variable file_name_here",
		},
		{
			name: "chained dotted tokens",
			in:   "version 1.2.3 de www.example.com",
			want: "version 1 virgule 2 virgule 3 de www point example point com",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in, fr)
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEnglishConnectors(t *testing.T) {
	en := ConnectorsFor(locale.Default().Get(locale.English))
	got := Normalize("Pi is 3.14, see notes.md", en)
	if !strings.Contains(got, "3 point 14") || !strings.Contains(got, "notes dot md") {
		t.Fatalf("Normalize() = %q, want english connectors", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"# Titre\n\n**Gras** et *italique* avec `code` et 2.5 kg de a.b.c",
		"| x | y |\n|---|---|\n| 1.5 | 2 |\n\n\n\nfin. Début.suite",
		"> > citation imbriquée\n- * liste bizarre\n___\n<div><p>html</p></div>",
		"__gras__ _ital_ _a_ _b_ ***mix***",
		"```\nnon fermé\n`inline` [lien](x) [[double]](y)",
		"1. 2. 3. compte\n\n\n   \n\n\nfin",
		strings.Repeat("> ", 10) + "x",
		strings.Repeat("- ", 10) + "x",
		strings.Repeat("> - 1. ", 6) + "mélange",
		strings.Repeat("# > ", 12) + "titre",
		"",
		"   ",
	}
	for _, in := range inputs {
		once := Normalize(in, fr)
		twice := Normalize(once, fr)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}
