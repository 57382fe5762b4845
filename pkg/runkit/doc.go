// Package runkit is the runtime support library imported by programs that
// sitescout generates. It owns everything a program needs that is not
// site-specific: session bookkeeping, metadata computed from observed data,
// paired output files, price parsing, platform record mapping and DOM lookups.
package runkit
