//go:build unix

package store

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/matzehuels/lilyenv/pkg/integrations/github/githubtest"
	"github.com/matzehuels/lilyenv/pkg/registry"
)

func TestEnsureInstalledTakesOverReservationOfExitedProcess(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	id := id312(t)

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	err := f.store.Registry.Update(context.Background(), func(r *registry.Registry) error {
		r.Reserve(id, registry.Reservation{Token: "killed", PID: cmd.Process.Pid, CreatedAt: time.Now()})
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	in, installed, err := f.store.EnsureInstalled(ctx, id, f.cat)
	if err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	if !installed || in.Build != id {
		t.Errorf("EnsureInstalled() = %+v, installed=%v", in, installed)
	}

	r, err := f.store.Registry.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, busy := r.Reservation(id); busy {
		t.Error("reservation should be cleared after install")
	}
}
