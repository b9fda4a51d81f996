// Package server assembles the library service: storage layout, pipeline
// stages, transfer orchestration and the gin router.
//
// Routes:
//
//	GET    /                          service banner
//	GET    /health                    component health
//	GET    /metrics                   Prometheus exposition
//	GET    /ws                        presentation events
//	POST   /library/import            multipart upload
//	POST   /library/download          remote import
//	GET    /library/imports[/:id]     import status
//	GET    /library/apps[/:id]        catalog
//	DELETE /library/apps/:id          remove entry and bundle
//	POST   /library/apps/:id/install  start install session
//	POST   /library/apps/:id/share    start share session
//	GET    /transfers                 live sessions
//	DELETE /transfers/:id             end a session
package server
