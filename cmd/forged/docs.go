package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           forged API
// @version         1.0
// @description     Model lifecycle, inference and accelerator telemetry over HTTP.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
