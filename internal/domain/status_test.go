package domain_test

import (
	"testing"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

func ptr(s domain.Status) *domain.Status { return &s }

// edges is the workflow written out independently of the package table.
var edges = map[domain.Status][]domain.Status{
	domain.StatusToDo:       {domain.StatusInProgress},
	domain.StatusInProgress: {domain.StatusBlocked, domain.StatusInQA},
	domain.StatusBlocked:    {domain.StatusToDo},
	domain.StatusInQA:       {domain.StatusToDo, domain.StatusDone},
	domain.StatusDone:       {domain.StatusDeployed},
}

func isEdge(from, to domain.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusToDo, "ToDo"},
		{domain.StatusInProgress, "InProgress"},
		{domain.StatusBlocked, "Blocked"},
		{domain.StatusInQA, "InQA"},
		{domain.StatusDone, "Done"},
		{domain.StatusDeployed, "Deployed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func TestIsAllowed_AllPairs(t *testing.T) {
	for _, from := range domain.Statuses() {
		for _, to := range domain.Statuses() {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				want := isEdge(from, to)
				if got := domain.IsAllowed(ptr(from), to); got != want {
					t.Errorf("IsAllowed(%s, %s) = %v, want %v", from, to, got, want)
				}
			})
		}
	}
}

func TestIsAllowed_DeployedIsTerminal(t *testing.T) {
	for _, to := range domain.Statuses() {
		if domain.IsAllowed(ptr(domain.StatusDeployed), to) {
			t.Errorf("IsAllowed(Deployed, %s) = true, want false", to)
		}
	}
}

func TestIsAllowed_Creation(t *testing.T) {
	if !domain.IsAllowed(nil, domain.StatusToDo) {
		t.Errorf("IsAllowed(nil, ToDo) = false, want true")
	}
	for _, to := range domain.Statuses() {
		if to == domain.StatusToDo {
			continue
		}
		if domain.IsAllowed(nil, to) {
			t.Errorf("IsAllowed(nil, %s) = true, want false", to)
		}
	}
}

func TestIsAllowed_UnknownPrevious(t *testing.T) {
	for _, to := range append(domain.Statuses(), "Archived") {
		if domain.IsAllowed(ptr("Archived"), to) {
			t.Errorf("IsAllowed(Archived, %s) = true, want false", to)
		}
	}
	if domain.IsAllowed(ptr(""), domain.StatusToDo) {
		t.Errorf("empty previous status must not be treated as creation")
	}
}

func TestIsAllowed_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if !domain.IsAllowed(ptr(domain.StatusInQA), domain.StatusDone) {
			t.Fatalf("call %d: IsAllowed(InQA, Done) = false, want true", i)
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range domain.Statuses() {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	for _, s := range []domain.Status{"", "todo", "DONE", "Archived"} {
		if s.Valid() {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range domain.Statuses() {
		want := s == domain.StatusDeployed
		if got := s.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%q) = %v, want %v", s, got, want)
		}
	}
	if domain.Status("Archived").IsTerminal() {
		t.Errorf("unknown status must not be reported terminal")
	}
}

func TestSuccessors_ReturnsCopy(t *testing.T) {
	next := domain.StatusInProgress.Successors()
	if len(next) != 2 {
		t.Fatalf("Successors(InProgress) = %v, want 2 entries", next)
	}
	next[0] = domain.StatusDeployed

	if domain.IsAllowed(ptr(domain.StatusInProgress), domain.StatusDeployed) {
		t.Errorf("mutating the returned slice must not change the transition table")
	}
}

func BenchmarkIsAllowed(b *testing.B) {
	from := ptr(domain.StatusInQA)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = domain.IsAllowed(from, domain.StatusDone)
	}
}
