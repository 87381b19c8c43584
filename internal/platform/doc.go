// Package platform is the SOAP transport for the partner login call and the
// Metadata API deploy and checkDeployStatus calls. It implements
// deploy.Authenticator and deploy.MetadataAPI.
package platform
