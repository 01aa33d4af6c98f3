// Package config loads the arenad bootstrap configuration from a JSON file:
// listen addresses, storage and fanout drivers, cache and auth settings.
// Match rules live in a separate YAML file owned by the rules package so the
// show can retune a season without touching deployment config.
package config
