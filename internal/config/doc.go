// Package config provides configuration structures and utilities for harvester.
// It covers storage, proxy, browser and pacing settings, the target site
// definition loaded from .harvester.yaml, and environment overrides.
package config
