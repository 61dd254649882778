package codec

// frameworkCapability is the unexported marker type that only this package
// can construct. Encoder and Decoder instances built by NewFrameworkEncoder
// / NewFrameworkDecoder carry a non-nil capability; instances built by the
// ordinary exported constructors do not. FileDescriptor and EndpointHandle
// check for its presence before allowing themselves to cross the wire,
// which is the language-neutral substitute for downcasting a coder to a
// concrete framework type.
type frameworkCapability struct{}

var theFrameworkCapability = &frameworkCapability{}
