// Package plugin defines the contract every facilitation plugin
// implements and the registry that maps configuration keys to plugin
// factories.
package plugin

import (
	"context"
	"fmt"

	"diplomat/internal/chat"
)

// Info describes a plugin's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("plugin: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("plugin: version is required for %s", i.ID)
	}
	return nil
}

// Plugin is implemented by every facilitation unit. One instance exists
// per configured plugin type and lives for the process lifetime; all of
// its state is owned exclusively by that instance and mutated only inside
// Generate.
//
// Generate is called once per poll with a fresh transcript snapshot,
// oldest first. It returns the interventions to deliver for this poll,
// in order. The engine guarantees at most one in-flight Generate per
// instance, so implementations need no internal locking.
type Plugin interface {
	Info() Info
	Generate(ctx context.Context, transcript chat.Transcript, botID chat.AuthorID, members []chat.AuthorID) ([]chat.Intervention, error)
}
