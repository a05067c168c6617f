package render

// stylesheet styles exactly the classes the fragment templates use.
const stylesheet = `*{box-sizing:border-box}
body{margin:0;font-family:system-ui,-apple-system,"Segoe UI",Roboto,sans-serif;line-height:1.5;color:#111827;background:#fff}
h1,h2,h3,p{margin:0}
.container{max-width:1100px;margin:0 auto;padding:0 16px}
.btn{display:inline-block;padding:10px 18px;border-radius:10px;background:#4f46e5;color:#fff;text-decoration:none;font-weight:600}
.card{border:1px solid #e5e7eb;border-radius:16px;padding:20px;background:#fff}
.text-center{text-align:center}
.text-4xl{font-size:2.25rem;line-height:2.5rem;font-weight:700}
.py-12{padding-top:3rem;padding-bottom:3rem}
.py-20{padding-top:5rem;padding-bottom:5rem}
.mt-2{margin-top:.5rem}
.mt-3{margin-top:.75rem}
.mt-6{margin-top:1.5rem}
.grid{display:grid;gap:16px}
@media (min-width:768px){.md\:grid-cols-3{grid-template-columns:repeat(3,minmax(0,1fr))}}
.border-t{border-top:1px solid #e5e7eb}
`

// classes is the class set the stylesheet covers.
var classes = []string{
	"border-t",
	"btn",
	"card",
	"container",
	"grid",
	"md:grid-cols-3",
	"mt-2",
	"mt-3",
	"mt-6",
	"py-12",
	"py-20",
	"text-4xl",
	"text-center",
}

// Stylesheet returns the CSS shared by previews and exported documents.
func Stylesheet() string { return stylesheet }

// Classes returns the class names the stylesheet defines, sorted.
func Classes() []string {
	return append([]string(nil), classes...)
}
