package openai

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// AzureOptions select an Azure OpenAI deployment and how to authenticate.
type AzureOptions struct {
	Endpoint   string // https://<resource>.openai.azure.com
	APIVersion string
	Deployment string

	// APIKey takes precedence over Credential when set.
	APIKey string
	// Credential defaults to azidentity.DefaultAzureCredential.
	Credential azcore.TokenCredential
}

// NewAzureModel creates a Model bound to an Azure OpenAI deployment. Without an
// API key the ambient Azure identity (environment, managed identity, az login)
// is used.
func NewAzureModel(azOpts AzureOptions, optFns ...func(o *Options)) (*Model, error) {
	if azOpts.Endpoint == "" {
		return nil, errors.New("azure endpoint is required")
	}
	if azOpts.Deployment == "" {
		return nil, errors.New("azure deployment is required")
	}
	if azOpts.APIVersion == "" {
		return nil, errors.New("azure api version is required")
	}

	reqOpts := []option.RequestOption{azure.WithEndpoint(azOpts.Endpoint, azOpts.APIVersion)}

	switch {
	case azOpts.APIKey != "":
		reqOpts = append(reqOpts, azure.WithAPIKey(azOpts.APIKey))
	default:
		cred := azOpts.Credential
		if cred == nil {
			dc, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("create azure credential: %w", err)
			}
			cred = dc
		}
		reqOpts = append(reqOpts, azure.WithTokenCredential(cred))
	}

	fns := make([]func(o *Options), 0, len(optFns)+1)
	fns = append(fns, optFns...)
	fns = append(fns, func(o *Options) {
		o.Model = azOpts.Deployment
		o.Provider = "azure"
		o.RequestOptions = append(reqOpts, o.RequestOptions...)
	})

	return NewModel(fns...), nil
}
