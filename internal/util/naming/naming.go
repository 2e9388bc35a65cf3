// Package naming derives Hetzner Cloud resource names from the project name.
package naming

func Network(project string) string { return project + "-network" }

func Firewall(project string) string { return project + "-firewall" }

func Server(project string) string { return project + "-server" }

func SSHKey(project string) string { return project + "-ssh" }

func FloatingIP(project string) string { return project + "-ipv4" }
