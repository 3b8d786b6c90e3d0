/*
Copyright 2025 The slowpoll Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package web

import (
	"fmt"
	"image/color"
	"net/http"

	"github.com/slowpoll/slowpoll/pkg/extract"
)

var (
	colorMap = map[string]color.RGBA{}
)

// Serve starts up an HTTP server at a given endpoint.
func Serve(endpoint string, polls []extract.Longpoll) error {
	http.HandleFunc("/", displayPolls(polls))

	fmt.Printf("Listening at %s ...", endpoint)

	return http.ListenAndServe(endpoint, nil)
}

func displayPolls(polls []extract.Longpoll) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := Render(w, polls); err != nil {
			http.Error(w, fmt.Sprintf("render failed: %v", err), 500)
		}
	}
}
