package nexusapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLiveCountsSkipsMalformedRows(t *testing.T) {
	c := NewForTest("", "", zerolog.Nop())

	data := "1,100,50,2000\n" +
		"2,200,75\n" + // three fields, skipped
		"not,a,number,row\n" + // non-numeric, skipped
		"3,300,120,9000\r\n" + // windows line ending
		"\n" +
		"4,400,10,1,extra\n" // five fields, skipped

	rows := c.parseLiveCounts(100, data)
	if len(rows) != 2 {
		t.Fatalf("expected 2 valid rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].ModID != 1 || rows[0].TotalDownloads != 100 || rows[0].UniqueDownloads != 50 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].ModID != 3 || rows[1].UniqueDownloads != 120 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestLiveDownloadCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/100.csv" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, "1,10,5,99\n2,20,8,42\n")
	}))
	defer srv.Close()

	c := NewForTest("", srv.URL, zerolog.Nop())
	rows, err := c.LiveDownloadCounts(context.Background(), 100)
	if err != nil {
		t.Fatalf("live counts: %v", err)
	}
	if len(rows) != 2 || rows[1].ModID != 2 || rows[1].UniqueDownloads != 8 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestModInfoSendsAuthAndDecodesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/games/skyrim/mods/42.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		fmt.Fprint(w, `{"mod_id":42,"game_id":100,"domain_name":"skyrim","name":"Example","status":"removed"}`)
	}))
	defer srv.Close()

	c := NewForTest(srv.URL, "", zerolog.Nop())
	info, err := c.ModInfo(context.Background(), "tok", "skyrim", 42)
	if err != nil {
		t.Fatalf("mod info: %v", err)
	}
	if info.GameID != 100 || info.Name != "Example" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !info.Withdrawn() {
		t.Fatal("removed status must count as withdrawn")
	}
}

func TestWithdrawnStatuses(t *testing.T) {
	for status, want := range map[string]bool{
		StatusRemoved:     true,
		StatusWastebinned: true,
		"published":       false,
		"hidden":          false,
	} {
		if got := (ModInfo{Status: status}).Withdrawn(); got != want {
			t.Errorf("status %q: withdrawn = %v, want %v", status, got, want)
		}
	}
}
