package registry

import "context"

// Collaborator performs the external side effects of the resource
// lifecycle. Every call carries an idempotency key (the resource id)
// so the registry can retry after a crash or a transient failure; the
// collaborator must deduplicate on the key.
type Collaborator interface {
	// ProvisionRequest asks the external provisioner to start building
	// a resource of the given kind.
	ProvisionRequest(ctx context.Context, kind, idempotencyKey string) error

	// Destroy asks the external provisioner to tear the resource down.
	// A repeated call with the same key must be a no-op.
	Destroy(ctx context.Context, resourceID, idempotencyKey string) error
}

// NopCollaborator is a Collaborator with no side effects. It serves
// deployments where provisioning is driven elsewhere and the registry
// only tracks lifecycle state.
type NopCollaborator struct{}

// ProvisionRequest does nothing.
func (NopCollaborator) ProvisionRequest(ctx context.Context, kind, idempotencyKey string) error {
	return nil
}

// Destroy does nothing.
func (NopCollaborator) Destroy(ctx context.Context, resourceID, idempotencyKey string) error {
	return nil
}
