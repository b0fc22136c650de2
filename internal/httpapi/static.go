package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var demoAssets embed.FS

func newStaticHandler() http.Handler {
	sub, err := fs.Sub(demoAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(sub))
}
