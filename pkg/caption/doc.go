// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package caption provides a unified interface for image captioning providers.
//
// This package abstracts hosted vision-to-text APIs behind a single
// interface. It is used by tabsync's upload engine to fill a caption column
// from an image column while rows are being written.
//
// # Supported Providers
//
// The following providers are supported:
//   - Hugging Face: hosted inference API, token required (default)
//   - Mock: for testing without real API calls
//
// # Quick Start
//
// Create a captioner explicitly:
//
//	captioner, err := caption.NewCaptioner(caption.ProviderConfig{
//	    Type:  "huggingface",
//	    Token: os.Getenv("HUGGING_FACE_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := os.Open("photos/cat.jpg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer img.Close()
//
//	resp, err := captioner.Caption(ctx, caption.CaptionRequest{
//	    Image:    img,
//	    Filename: "cat.jpg",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
//
// # Model Aliases
//
// The Hugging Face provider accepts three short aliases, resolved to hub
// paths before the request is built:
//   - vit-gpt2: nlpconnect/vit-gpt2-image-captioning (default)
//   - blip-image: Salesforce/blip-image-captioning-large
//   - git-large: microsoft/git-large-coco
//
// Anything else is treated as a full hub path and used as-is, so any
// image-to-text model on the hub works:
//
//	resp, err := captioner.Caption(ctx, caption.CaptionRequest{
//	    Image:    img,
//	    Filename: "cat.jpg",
//	    Model:    "Salesforce/blip2-opt-2.7b",
//	})
//
// # Environment Variables
//
// Hugging Face:
//   - HUGGING_FACE_TOKEN: API token (required)
//   - HUGGING_FACE_MODEL: default model alias or hub path (default: vit-gpt2)
//
// # Error Handling
//
// All provider methods return descriptive errors that include the image
// filename and, for API failures, the upstream status and body:
//
//	resp, err := captioner.Caption(ctx, req)
//	if err != nil {
//	    // e.g. "huggingface caption error (status 401): invalid token"
//	    return err
//	}
//
// The upload engine treats caption failures as per-row and non-fatal: the
// row is still written, the caption column stays empty, and the failure is
// logged.
package caption
