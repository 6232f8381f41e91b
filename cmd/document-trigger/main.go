// The document-trigger function listens for Cloud Storage upload
// events and kicks off processing for each supported document.
package main

import (
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/sirupsen/logrus"
)

func init() {
	functions.CloudEvent("DocumentUploaded", defaultHandler().DocumentUploaded)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8088"
	}
	if err := funcframework.Start(port); err != nil {
		logrus.WithError(err).Fatal("Failed to start functions framework")
	}
}
