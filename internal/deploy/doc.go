// Package deploy turns the configuration into Helm releases ordered by
// dependencies and converges them onto the cluster.
//
// DefaultCatalog describes the stock release set. Releases applies the
// configured overrides and custom releases on top of it. Values that are only
// known at run time, such as the reserved address or the discovered node
// names, are supplied by ValueInjectors evaluated when a release task runs.
package deploy
