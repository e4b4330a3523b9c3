package target

import (
	"reflect"
	"testing"
)

func TestBuild_PartNumber(t *testing.T) {
	b := NewBuilder("https://shop.test/")
	got := b.Build("  LM317T ")

	want := []Target{
		{URL: "https://shop.test/product/lm317t", Kind: KindProduct},
		{URL: "https://shop.test/search?searchtext=LM317T", Kind: KindSearch},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected targets:\n got %+v\nwant %+v", got, want)
	}
}

func TestBuild_PartNumberWithSeparators(t *testing.T) {
	b := NewBuilder("https://shop.test")
	got := b.Build("1N4007-T.B")

	if len(got) != 3 {
		t.Fatalf("expected 3 targets, got %d: %+v", len(got), got)
	}
	if got[0].Kind != KindProduct {
		t.Errorf("expected direct candidate first, got %s", got[0].Kind)
	}
	if got[2].URL != "https://shop.test/search?searchtext=1N4007TB" {
		t.Errorf("unexpected compact search target %s", got[2].URL)
	}
}

func TestBuild_FreeText(t *testing.T) {
	b := NewBuilder("")
	got := b.Build("diode 1A 1000V")

	if len(got) != 1 {
		t.Fatalf("expected a single search target, got %+v", got)
	}
	if got[0].Kind != KindSearch {
		t.Errorf("expected search kind, got %s", got[0].Kind)
	}
	if got[0].URL != DefaultBaseURL+"/search?searchtext=diode+1A+1000V" {
		t.Errorf("unexpected url %s", got[0].URL)
	}
}

func TestBuild_NeverEmpty(t *testing.T) {
	b := NewBuilder("")
	for _, q := range []string{"", "   ", "%%%", "ab", "-x-", "!!!???"} {
		if got := b.Build(q); len(got) == 0 {
			t.Errorf("Build(%q) returned no targets", q)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder("")
	for _, q := range []string{"LM317", "BC547-B", "резистор 10k", ""} {
		first := b.Build(q)
		for i := 0; i < 5; i++ {
			if again := b.Build(q); !reflect.DeepEqual(first, again) {
				t.Fatalf("Build(%q) not deterministic: %+v vs %+v", q, first, again)
			}
		}
	}
}

func TestLooksLikePartNumber(t *testing.T) {
	cases := map[string]bool{
		"LM317":       true,
		"1n4007":      true,
		"BC547-B":     true,
		"STM32F103.C": true,
		"ab":          false,
		"-ab":         false,
		"two words":   false,
		"":            false,
		"μA741":       false,
	}
	for q, want := range cases {
		if got := LooksLikePartNumber(q); got != want {
			t.Errorf("LooksLikePartNumber(%q) = %v, want %v", q, got, want)
		}
	}
}
