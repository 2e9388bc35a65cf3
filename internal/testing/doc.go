// Package testing provides builders, fakes and fixtures shared by the stage
// and orchestration tests:
//   - ConfigBuilder: fluent builder for test configurations
//   - RecordingObserver: thread-safe observer that keeps every event
//   - FakeHost: an SSH executor that behaves like a VM running the k3s installer
//   - WriteKeyPair / Kubeconfig: on-disk and in-memory fixtures
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithName("demo").
//	    WithReservedAddress(false).
//	    Build()
//
//	host := testing.NewFakeHost()
//	out, err := host.Execute(ctx, "sudo cat /etc/rancher/k3s/k3s.yaml")
package testing
