package importlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pitabwire/marketdesk/model"
)

func seed(t *testing.T, s *MemoryStore, subject string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := s.Append(context.Background(), model.ImportReport{
			ID:        fmt.Sprintf("%s-%d", subject, i),
			SubjectID: subject,
			FileName:  "users.csv",
			Inserted:  i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	seed(t, s, "admin-1", 5, base)
	seed(t, s, "admin-2", 2, base)

	tests := []struct {
		name      string
		q         Query
		wantIDs   []string
		wantTotal int
		wantPages int
	}{
		{"newest first", Query{SubjectID: "admin-1", PageSize: 2},
			[]string{"admin-1-4", "admin-1-3"}, 5, 3},
		{"second page", Query{SubjectID: "admin-1", Page: 2, PageSize: 2},
			[]string{"admin-1-2", "admin-1-1"}, 5, 3},
		{"last partial page", Query{SubjectID: "admin-1", Page: 3, PageSize: 2},
			[]string{"admin-1-0"}, 5, 3},
		{"past the end", Query{SubjectID: "admin-1", Page: 9, PageSize: 2},
			[]string{}, 5, 3},
		{"other subject", Query{SubjectID: "admin-2", PageSize: 10},
			[]string{"admin-2-1", "admin-2-0"}, 2, 1},
		{"unknown subject", Query{SubjectID: "nobody"}, []string{}, 0, 0},
		{"every subject", Query{PageSize: 3}, nil, 7, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.List(context.Background(), tt.q)
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if page.TotalItems != tt.wantTotal || page.TotalPages != tt.wantPages {
				t.Errorf("totals = (%d, %d), want (%d, %d)", page.TotalItems, page.TotalPages, tt.wantTotal, tt.wantPages)
			}
			if page.Items == nil {
				t.Fatal("Items should never be nil")
			}
			if tt.wantIDs == nil {
				return
			}
			got := make([]string, len(page.Items))
			for i, r := range page.Items {
				got[i] = r.ID
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

func TestMemoryStore_List_defaults(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "a", 25, time.Now())
	page, _ := s.List(context.Background(), Query{})
	if page.Page != 1 || page.PageSize != 20 || len(page.Items) != 20 {
		t.Errorf("page = %d size = %d items = %d, want 1/20/20", page.Page, page.PageSize, len(page.Items))
	}
}

func TestMemoryStore_Append_duplicate(t *testing.T) {
	s := NewMemoryStore()
	r := model.ImportReport{ID: "r1", SubjectID: "a"}
	if err := s.Append(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	err := s.Append(context.Background(), r)
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrConflict {
		t.Errorf("error = %v, want %s", err, model.ErrConflict)
	}
	if err := s.Append(context.Background(), model.ImportReport{}); err == nil {
		t.Error("a report without id must be rejected")
	}
}

func TestMemoryStore_Append_copiesErrors(t *testing.T) {
	s := NewMemoryStore()
	errs := []string{"row 2: bad email"}
	if err := s.Append(context.Background(), model.ImportReport{ID: "r1", Errors: errs}); err != nil {
		t.Fatal(err)
	}
	errs[0] = "changed"
	page, _ := s.List(context.Background(), Query{})
	if page.Items[0].Errors[0] != "row 2: bad email" {
		t.Error("stored report must not alias the caller's slice")
	}
}
