// Package instance implements persistence for instance metadata.
//
// The FileRepository stores each bundle.Instance as instance.yaml inside its
// per-instance directory, so deleting the directory also forgets the instance.
package instance
