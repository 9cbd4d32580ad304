package scimproto

// ServiceProviderConfig represents the SCIM service provider configuration
type ServiceProviderConfig struct {
	Schemas               []string               `json:"schemas"`
	DocumentationURI      string                 `json:"documentationUri,omitempty"`
	Patch                 SupportedFeature       `json:"patch"`
	Bulk                  BulkFeature            `json:"bulk"`
	Filter                FilterFeature          `json:"filter"`
	ChangePassword        SupportedFeature       `json:"changePassword"`
	Sort                  SupportedFeature       `json:"sort"`
	Etag                  SupportedFeature       `json:"etag"`
	AuthenticationSchemes []AuthenticationScheme `json:"authenticationSchemes"`
}

// SupportedFeature indicates if a feature is supported
type SupportedFeature struct {
	Supported bool `json:"supported"`
}

// BulkFeature describes bulk operation capabilities
type BulkFeature struct {
	Supported      bool `json:"supported"`
	MaxOperations  int  `json:"maxOperations"`
	MaxPayloadSize int  `json:"maxPayloadSize"`
}

// FilterFeature describes filter capabilities
type FilterFeature struct {
	Supported  bool `json:"supported"`
	MaxResults int  `json:"maxResults"`
}

// AuthenticationScheme describes an authentication scheme
type AuthenticationScheme struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	SpecURI          string `json:"specUri,omitempty"`
	DocumentationURI string `json:"documentationUri,omitempty"`
	Primary          bool   `json:"primary,omitempty"`
}

// SchemaDefinition represents a SCIM schema definition
type SchemaDefinition struct {
	ID          string                `json:"id"`
	Name        string                `json:"name,omitempty"`
	Description string                `json:"description,omitempty"`
	Attributes  []AttributeDefinition `json:"attributes,omitempty"`
}

// AttributeDefinition describes a SCIM attribute
type AttributeDefinition struct {
	Name            string                `json:"name"`
	Type            string                `json:"type"`
	SubAttributes   []AttributeDefinition `json:"subAttributes,omitempty"`
	MultiValued     bool                  `json:"multiValued"`
	Description     string                `json:"description,omitempty"`
	Required        bool                  `json:"required"`
	CaseExact       bool                  `json:"caseExact"`
	Mutability      string                `json:"mutability"`
	Returned        string                `json:"returned"`
	Uniqueness      string                `json:"uniqueness"`
	ReferenceTypes  []string              `json:"referenceTypes,omitempty"`
	CanonicalValues []string              `json:"canonicalValues,omitempty"`
}

// ResourceTypeDefinition represents a resource type
type ResourceTypeDefinition struct {
	Schemas          []string             `json:"schemas"`
	ID               string               `json:"id"`
	Name             string               `json:"name,omitempty"`
	Endpoint         string               `json:"endpoint"`
	Description      string               `json:"description,omitempty"`
	Schema           string               `json:"schema"`
	SchemaExtensions []SchemaExtensionRef `json:"schemaExtensions,omitempty"`
}

// SchemaExtensionRef references a schema extension
type SchemaExtensionRef struct {
	Schema   string `json:"schema"`
	Required bool   `json:"required"`
}

// FeatureToggles controls which ServiceProviderConfig capabilities an
// endpoint advertises. Each tenant tunes this independently rather
// than sharing one hardcoded global config.
type FeatureToggles struct {
	Patch          bool
	Bulk           bool
	Filter         bool
	ChangePassword bool
	Sort           bool
	Etag           bool
}

// DefaultFeatureToggles enables every optional SCIM capability.
func DefaultFeatureToggles() FeatureToggles {
	return FeatureToggles{Patch: true, Bulk: true, Filter: true, ChangePassword: true, Sort: true, Etag: true}
}

// Catalog bundles the discovery documents an endpoint advertises: its
// ServiceProviderConfig, schema set, and resource type set. An
// endpoint with a nil Catalog field falls back to DefaultCatalog.
type Catalog struct {
	ServiceProviderConfig *ServiceProviderConfig
	UserSchema            *SchemaDefinition
	GroupSchema           *SchemaDefinition
	ResourceTypes         []ResourceTypeDefinition
}

// DefaultCatalog returns the stock discovery documents shared by any
// endpoint that hasn't overridden its feature toggles or schemas.
func DefaultCatalog() *Catalog {
	return &Catalog{
		ServiceProviderConfig: BuildServiceProviderConfig(DefaultFeatureToggles(), nil),
		UserSchema:            DefaultUserSchema(),
		GroupSchema:           DefaultGroupSchema(),
		ResourceTypes:         DefaultResourceTypes(),
	}
}

// BuildServiceProviderConfig derives a ServiceProviderConfig from an
// endpoint's feature toggles and configured authentication schemes,
// rather than returning one constant shared by every tenant.
func BuildServiceProviderConfig(toggles FeatureToggles, authSchemes []AuthenticationScheme) *ServiceProviderConfig {
	if len(authSchemes) == 0 {
		authSchemes = []AuthenticationScheme{
			{
				Type:             "httpbasic",
				Name:             "HTTP Basic",
				Description:      "Authentication scheme using the HTTP Basic Standard",
				SpecURI:          "http://www.rfc-editor.org/info/rfc2617",
				DocumentationURI: "http://tools.ietf.org/html/rfc2617",
				Primary:          true,
			},
			{
				Type:        "oauthbearertoken",
				Name:        "OAuth Bearer Token",
				Description: "Authentication scheme using the OAuth Bearer Token Standard",
				SpecURI:     "http://www.rfc-editor.org/info/rfc6750",
			},
		}
	}

	return &ServiceProviderConfig{
		Schemas:          []string{"urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"},
		DocumentationURI: "https://github.com/scimforge/gateway",
		Patch:            SupportedFeature{Supported: toggles.Patch},
		Bulk: BulkFeature{
			Supported:      toggles.Bulk,
			MaxOperations:  1000,
			MaxPayloadSize: 1048576, // 1MB
		},
		Filter: FilterFeature{
			Supported:  toggles.Filter,
			MaxResults: 1000,
		},
		ChangePassword:        SupportedFeature{Supported: toggles.ChangePassword},
		Sort:                  SupportedFeature{Supported: toggles.Sort},
		Etag:                  SupportedFeature{Supported: toggles.Etag},
		AuthenticationSchemes: authSchemes,
	}
}

// DefaultUserSchema returns the stock User schema definition.
func DefaultUserSchema() *SchemaDefinition {
	return &SchemaDefinition{
		ID:          SchemaUser,
		Name:        "User",
		Description: "User Account",
		Attributes: []AttributeDefinition{
			{
				Name:       "userName",
				Type:       "string",
				Required:   true,
				Mutability: "readWrite",
				Returned:   "default",
				Uniqueness: "server",
			},
			{
				Name:       "name",
				Type:       "complex",
				Mutability: "readWrite",
				Returned:   "default",
				SubAttributes: []AttributeDefinition{
					{Name: "formatted", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "familyName", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "givenName", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "middleName", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "honorificPrefix", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "honorificSuffix", Type: "string", Mutability: "readWrite", Returned: "default"},
				},
			},
			{Name: "displayName", Type: "string", Mutability: "readWrite", Returned: "default"},
			{
				Name:        "emails",
				Type:        "complex",
				MultiValued: true,
				Mutability:  "readWrite",
				Returned:    "default",
				SubAttributes: []AttributeDefinition{
					{Name: "value", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "display", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "type", Type: "string", Mutability: "readWrite", Returned: "default", CanonicalValues: []string{"work", "home", "other"}},
					{Name: "primary", Type: "boolean", Mutability: "readWrite", Returned: "default"},
				},
			},
			{Name: "active", Type: "boolean", Mutability: "readWrite", Returned: "default"},
		},
	}
}

// DefaultGroupSchema returns the stock Group schema definition.
func DefaultGroupSchema() *SchemaDefinition {
	return &SchemaDefinition{
		ID:          SchemaGroup,
		Name:        "Group",
		Description: "Group",
		Attributes: []AttributeDefinition{
			{
				Name:       "displayName",
				Type:       "string",
				Required:   true,
				Mutability: "readWrite",
				Returned:   "default",
				Uniqueness: "server",
			},
			{
				Name:        "members",
				Type:        "complex",
				MultiValued: true,
				Mutability:  "readWrite",
				Returned:    "default",
				SubAttributes: []AttributeDefinition{
					{Name: "value", Type: "string", Mutability: "readWrite", Returned: "default"},
					{Name: "$ref", Type: "reference", Mutability: "readWrite", Returned: "default", ReferenceTypes: []string{"User", "Group"}},
					{Name: "type", Type: "string", Mutability: "readWrite", Returned: "default", CanonicalValues: []string{"User", "Group"}},
				},
			},
		},
	}
}

// DefaultResourceTypes returns the stock resource type catalog.
func DefaultResourceTypes() []ResourceTypeDefinition {
	return []ResourceTypeDefinition{
		{
			Schemas:     []string{"urn:ietf:params:scim:schemas:core:2.0:ResourceType"},
			ID:          "User",
			Name:        "User",
			Endpoint:    "/Users",
			Description: "User Account",
			Schema:      SchemaUser,
			SchemaExtensions: []SchemaExtensionRef{
				{Schema: "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User", Required: false},
			},
		},
		{
			Schemas:     []string{"urn:ietf:params:scim:schemas:core:2.0:ResourceType"},
			ID:          "Group",
			Name:        "Group",
			Endpoint:    "/Groups",
			Description: "Group",
			Schema:      SchemaGroup,
		},
	}
}

// ResolveCatalog returns c if non-nil, otherwise the default catalog.
// Callers hold the per-endpoint override and fall back here so a
// freshly-created endpoint with no explicit discovery config still
// advertises working defaults.
func ResolveCatalog(c *Catalog) *Catalog {
	if c == nil {
		return DefaultCatalog()
	}
	resolved := *c
	if resolved.ServiceProviderConfig == nil {
		resolved.ServiceProviderConfig = BuildServiceProviderConfig(DefaultFeatureToggles(), nil)
	}
	if resolved.UserSchema == nil {
		resolved.UserSchema = DefaultUserSchema()
	}
	if resolved.GroupSchema == nil {
		resolved.GroupSchema = DefaultGroupSchema()
	}
	if resolved.ResourceTypes == nil {
		resolved.ResourceTypes = DefaultResourceTypes()
	}
	return &resolved
}
