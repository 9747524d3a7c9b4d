// Package config handles HCL configuration parsing, defaults and validation.
//
// # Configuration Blocks
//
// Main HCL blocks:
//   - router: a managed VyOS device, its rule sets and interface bindings
//   - deployment: grace period, timeouts and liveness ping settings
//   - address, service: named objects referenced by firewall rules
//   - firewall: a rule set with numbered rule blocks
//   - fragment: raw configuration merged at a context path
//   - state, logging, server, drift, events, tracing: daemon settings
//
// Example:
//
//	router "edge1" {
//	  url         = "https://192.0.2.1"
//	  api_key_env = "EDGE1_KEY"
//	  interface "eth0" {
//	    in = "wan-in"
//	  }
//	}
//
//	address "web" {
//	  type      = "host"
//	  addresses = ["10.0.0.10"]
//	}
//
//	service "https" {
//	  type     = "port"
//	  protocol = "tcp"
//	  ports    = [443]
//	}
//
//	firewall "wan-in" {
//	  default_action = "drop"
//	  rule "10" {
//	    action = "accept"
//	    states = ["established", "related"]
//	  }
//	  rule "20" {
//	    action      = "accept"
//	    destination = "web"
//	    service     = "https"
//	  }
//	}
package config
