package render

const blockTemplates = `
{{define "hero"}}<section class="py-20 text-center"><h1 class="text-4xl">{{.Headline}}</h1><p class="mt-3">{{.Sub}}</p><a class="btn mt-6" href="#">{{.CTA}}</a></section>{{end}}

{{define "features"}}<section class="py-12"><h2 class="text-center">Features</h2><div class="grid md:grid-cols-3 mt-6">{{range .Items}}<div class="card text-center">{{.}}</div>{{end}}</div></section>{{end}}

{{define "pricing"}}<section class="py-12 text-center"><h2>{{.Title}}</h2><div class="card mt-6"><div class="text-4xl">{{.Price}}</div><ul class="mt-3">{{range .Bullets}}<li>• {{.}}</li>{{end}}</ul><a class="btn mt-6" href="#">Choose Plan</a></div></section>{{end}}

{{define "faq"}}<section class="py-12"><h2 class="text-center">FAQ</h2>{{range .Items}}<details class="card"><summary>{{.Q}}</summary><p class="mt-2">{{.A}}</p></details>{{end}}</section>{{end}}

{{define "footer"}}<footer class="py-12 text-center border-t">{{.Text}}</footer>{{end}}
`

const sectionTemplates = `
{{define "hero"}}<section id="hero" class="py-20 text-center"><h1 class="text-4xl">{{.Title}}</h1><div class="mt-3">{{.Description}}</div><a class="btn mt-6" href="#pricing">See pricing</a></section>{{end}}

{{define "features"}}<section id="features" class="py-12"><h2 class="text-center">Why this template?</h2>{{if .Tags}}<p class="mt-2 text-center">Best for: {{join .Tags ", "}}</p>{{end}}<div class="grid md:grid-cols-3 mt-6">{{range .Highlights}}<div class="card"><h3>{{.Title}}</h3><p class="mt-2">{{.Desc}}</p></div>{{end}}</div></section>{{end}}

{{define "gallery"}}<section id="gallery" class="py-12"><h2 class="text-center">Gallery</h2><div class="grid md:grid-cols-3 mt-6">{{range .Gallery}}<div class="card text-center">{{.}}</div>{{end}}</div></section>{{end}}

{{define "pricing"}}<section id="pricing" class="py-12"><h2 class="text-center">Pricing</h2><div class="grid md:grid-cols-3 mt-6">{{range .Tiers}}<div class="card"><h3>{{.Name}}</h3><p class="text-4xl mt-2">{{.Price}}</p><ul class="mt-3">{{range .Features}}<li>• {{.}}</li>{{end}}</ul></div>{{end}}</div></section>{{end}}

{{define "faq"}}<section id="faq" class="py-12"><h2 class="text-center">Frequently asked questions</h2>{{range .FAQ}}<details class="card mt-2"><summary>{{.Q}}</summary><p class="mt-2">{{.A}}</p></details>{{end}}</section>{{end}}

{{define "cta"}}<section id="cta" class="py-12"><div class="card text-center"><h2>Ready to launch?</h2><p class="mt-2">Publish your site with SSL and fast hosting in minutes.</p><a class="btn mt-6" href="/hosting?template={{.Slug}}">Get started</a></div></section>{{end}}
`

const documentTemplate = `<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
<div class="container">
{{range .Fragments}}{{.}}
{{end}}</div>
{{- if .LiveURL}}
<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + {{.LiveURL}});
  ws.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.action === "render") {
      document.querySelector(".container").innerHTML = msg.html;
    } else if (msg.action === "reload") {
      location.reload();
    }
  };
})();
</script>
{{- end}}
</body>
</html>
`
