package main

// General API documentation for swaggo. Run swag against this package to
// regenerate docs.
//
// @title           presetd API
// @version         1.0
// @description     HTTP API for local inference-engine preset management and proxying.
//
// @contact.name   presetd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
