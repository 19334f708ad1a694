package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// staticToken presents a caller-supplied bearer token as an azcore
// credential. The proxy does not refresh it; an expired token fails the call.
type staticToken string

func (t staticToken) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: string(t), ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// realAzureClient wraps the official Azure SDK client to satisfy AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

// NewAzureClientFunc returns an AzureClientFunc that authenticates against
// accountURL with the request token.
func NewAzureClientFunc(accountURL string) AzureClientFunc {
	return func(token string) (AzureBlobAPI, error) {
		client, err := azblob.NewClient(accountURL, staticToken(token), nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}
}

func (c *realAzureClient) UploadFile(ctx context.Context, containerName, blobName string, f *os.File) error {
	_, err := c.client.UploadFile(ctx, containerName, blobName, f, nil)
	return err
}

func (c *realAzureClient) DownloadRange(ctx context.Context, containerName, blobName string, offset int64) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, containerName, blobName, &azblob.DownloadStreamOptions{
		Range: azblob.HTTPRange{Offset: offset},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *realAzureClient) Size(ctx context.Context, containerName, blobName string) (int64, error) {
	resp, err := c.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ContentLength != nil {
		return *resp.ContentLength, nil
	}
	return 0, nil
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	_, err := c.client.DeleteBlob(ctx, containerName, blobName, nil)
	return err
}

func hasAzureNotFoundCode(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
