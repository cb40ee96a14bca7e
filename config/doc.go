// Package config loads the server configuration from YAML.
//
// The file is expanded with ExpandEnvStrict before decoding, so secrets
// such as database DSNs and JWT keys can be written as ${VAR}. Unknown
// fields are rejected. Load applies defaults and calls Validate.
//
//	stores:
//	  main:
//	    directory: /var/cache/pipecache
//	    exclusive: true
//	components:
//	  static:
//	    type: resource
//	    resource:
//	      expires: 60000
//	mounts:
//	  - name: static
//	    path: /static/
//	    store: main
//	    steps:
//	      - component: static
//	        src: "{path}"
package config
