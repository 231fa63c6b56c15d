// Package pkg provides the libraries behind the minpm and minpx commands.
//
// # Overview
//
// minpm installs packages from an npm-compatible registry. The pkg
// directory is organized by stage of an install:
//
//  1. [registry] - metadata client and version resolution
//  2. [archive] - tarball download and extraction
//  3. [install] - recursive install, dedupe by name, uninstall
//  4. [manifest] - package.json reading and writing
//  5. [shim] - bin launchers for global installs
//  6. [launch] and [runner] - running an installed package's entry point
//
// Supporting packages: [errors] (coded errors), [httputil] (requests and
// retries), [observability] (install and HTTP hooks), [buildinfo].
//
// # Architecture
//
//	install request
//	       ↓
//	[registry] fetch metadata, resolve version
//	       ↓
//	[archive] fetch and extract into node_modules/<name>
//	       ↓
//	[manifest] record "^<version>"  (local)
//	       ↓
//	recurse into dependencies
//	       ↓
//	[shim] write bin launchers      (global)
//
// # Quick Start
//
//	client := registry.NewClient(registry.DefaultURL)
//	inst := install.NewInstaller(client, &archive.Fetcher{}, manifest.NewStore("."), globalRoot, logger)
//	n, err := inst.Install(ctx, reqs, install.NewContext(".", false))
package pkg
